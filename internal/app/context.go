// Package app wires the workspace pieces together for the CLI and server:
// config, database, migrations, engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/migrate"
	"pactline/internal/repo"
)

type Context struct {
	Workspace string
	Config    config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

// Open loads the workspace config, opens the database and applies pending
// migrations. Callers own Close.
func Open(workspace string) (*Context, error) {
	cfg, err := config.LoadOptional(filepath.Join(workspace, "pactline.yml"))
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    engine.New(conn, cfg),
	}, nil
}

func (a *Context) Close() error {
	return a.DB.Close()
}

// ResolveActor looks the acting user up by id first, then by email, so CLI
// flags may carry either.
func (a *Context) ResolveActor(ctx context.Context, idOrEmail string) (domain.User, error) {
	if idOrEmail == "" {
		return domain.User{}, errors.New("no actor given: pass --actor or set PACTLINE_ACTOR")
	}
	u, err := a.Engine.Repo.GetUser(ctx, idOrEmail)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	return a.Engine.Repo.GetUserByEmail(ctx, idOrEmail)
}
