package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pactline/internal/app"
	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pact",
	Short: "Pactline CLI",
	Long: `Pactline tracks bilateral agreements between two people.
- Contract: a pact between you and one counterpart, created pending and
  activated by its creator.
- Conditions: what the other party owes; counterparts: what you offer in
  return. Both sides must be written down before a contract is valid.
- Completion: each item is ticked off by its responsible party (or the
  creator); when every item on both lists is done the contract completes
  by itself.
- Invitations: grow your contact list by inviting people by email.
- Event log: diary of everything that happened, view with 'pact log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PACTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user id or email")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default pactline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := filepath.Join(workspace, "pactline.yml")
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Config at %s, database at %s\n", path, db.Path(workspace))
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	user.AddCommand(userRegisterCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userSearchCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userContactsCmd())
	return user
}

func userRegisterCmd() *cobra.Command {
	var opts engine.RegisterUserOpts
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Email == "" {
				return fmt.Errorf("--email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.RegisterUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (optional, generated if omitted)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name (defaults to email)")
	cmd.Flags().StringVar(&opts.PhotoURL, "photo", "", "photo URL")
	cmd.Flags().BoolVar(&opts.IsAdmin, "admin", false, "grant admin rights")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id-or-email>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				u, err := a.ResolveActor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <email-prefix>",
		Short: "Search users by email prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				users, err := a.Engine.SearchUsers(ctx, actor.ID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				renderUserTable(users)
				return nil
			})
		},
	}
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				users, err := a.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				renderUserTable(users)
				return nil
			})
		},
	}
	return cmd
}

func userContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List my contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				var contacts []domain.User
				for _, id := range actor.Contacts {
					u, err := a.Engine.GetUser(ctx, id)
					if err != nil {
						return err
					}
					contacts = append(contacts, u)
				}
				if viper.GetBool("json") {
					if contacts == nil {
						contacts = []domain.User{}
					}
					return printJSON(contacts)
				}
				renderUserTable(contacts)
				return nil
			})
		},
	}
	return cmd
}

func contractCmd() *cobra.Command {
	contract := &cobra.Command{
		Use:   "contract",
		Short: "Manage contracts",
		Long:  "Contracts are bilateral pacts. They start pending, the creator activates them, and they complete automatically once every condition and counterpart is ticked off.",
	}
	contract.AddCommand(contractCreateCmd())
	contract.AddCommand(contractListCmd())
	contract.AddCommand(contractShowCmd())
	contract.AddCommand(contractActivateCmd())
	contract.AddCommand(contractCompleteConditionCmd())
	contract.AddCommand(contractCompleteCounterpartCmd())
	return contract
}

func contractCreateCmd() *cobra.Command {
	var title, with string
	var conditions, counterparts []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				counterpartUser, err := a.ResolveActor(ctx, with)
				if err != nil {
					return fmt.Errorf("counterpart %q: %w", with, err)
				}
				d := engine.Draft{Title: title, CounterpartUserID: counterpartUser.ID}
				for _, desc := range conditions {
					d.Conditions = append(d.Conditions, engine.DraftCondition{Description: desc})
				}
				for _, desc := range counterparts {
					d.Counterparts = append(d.Counterparts, engine.DraftCounterpart{Description: desc})
				}
				c, err := a.Engine.CreateContract(ctx, actor.ID, d)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "contract title")
	cmd.Flags().StringVar(&with, "with", "", "counterpart user id or email")
	cmd.Flags().StringArrayVar(&conditions, "condition", []string{}, "condition owed by the counterpart (repeatable)")
	cmd.Flags().StringArrayVar(&counterparts, "counterpart", []string{}, "counterpart you offer in return (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("with")
	return cmd
}

func contractListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				items, err := a.Engine.ListContracts(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderContractTable(items, actor.ID)
				return nil
			})
		},
	}
	return cmd
}

func contractShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				c, err := a.Engine.GetContract(ctx, actor.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func contractActivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a pending contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				c, err := a.Engine.Activate(ctx, actor.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func contractCompleteConditionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete-condition <contract-id> <condition-id>",
		Short: "Mark a condition completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				c, err := a.Engine.CompleteCondition(ctx, actor.ID, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func contractCompleteCounterpartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete-counterpart <contract-id> <counterpart-id>",
		Short: "Mark a counterpart completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				c, err := a.Engine.CompleteCounterpart(ctx, actor.ID, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func inviteCmd() *cobra.Command {
	invite := &cobra.Command{Use: "invite", Short: "Manage contact invitations"}
	invite.AddCommand(inviteSendCmd())
	invite.AddCommand(inviteListCmd())
	invite.AddCommand(inviteRespondCmd("accept", true))
	invite.AddCommand(inviteRespondCmd("reject", false))
	return invite
}

func inviteSendCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Invite a contact by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				inv, err := a.Engine.SendInvitation(ctx, actor.ID, email)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "recipient email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func inviteListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				items, err := a.Engine.ListInvitations(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "From", "To", "Status", "Sent"})
				for _, inv := range items {
					to := inv.ToUser
					if to == "" {
						to = inv.ToEmail
					}
					tw.AppendRow(table.Row{inv.ID, inv.FromUser, to, inv.Status, inv.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func inviteRespondCmd(name string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <invitation-id>",
		Short: strings.ToUpper(name[:1]) + name[1:] + " an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				inv, err := a.Engine.RespondInvitation(ctx, actor.ID, args[0], accept)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Administrative operations"}
	admin.AddCommand(adminContractsCmd())
	admin.AddCommand(adminDeleteCmd())
	return admin
}

func adminContractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "List all contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				items, err := a.Engine.AdminListContracts(ctx, actor.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderContractTable(items, actor.ID)
				return nil
			})
		},
	}
	return cmd
}

func adminDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <contract-id>",
		Short: "Delete a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				return a.Engine.AdminDeleteContract(ctx, actor.ID, args[0])
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	apikey.AddCommand(apikeyCreateCmd())
	apikey.AddCommand(apikeyListCmd())
	apikey.AddCommand(apikeyRevokeCmd())
	return apikey
}

func apikeyCreateCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				k, raw, err := a.Engine.CreateAPIKey(ctx, actor.ID, label)
				if err != nil {
					return err
				}
				// The raw key is shown once; only the hash is stored.
				return printJSONOrTable(map[string]string{
					"id":      k.ID,
					"user_id": k.UserID,
					"label":   k.Label,
					"key":     raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				items, err := a.Engine.Repo.ListAPIKeys(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0], actor.ID)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, contractID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.User) error {
				events, err := a.Engine.LatestEvents(ctx, actor.ID, n, contractID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&contractID, "contract", "", "contract id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Open(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv(a.Config.Auth.JWTSecretEnv),
				AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				return fmt.Errorf("%s is required for bearer auth", a.Config.Auth.JWTSecretEnv)
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pactline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		return fn(ctx, a.Engine)
	})
}

func withActor(ctx context.Context, fn func(context.Context, *app.Context, domain.User) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		actor, err := a.ResolveActor(ctx, viper.GetString("actor"))
		if err != nil {
			return err
		}
		return fn(ctx, a, actor)
	})
}

func renderContractTable(items []domain.Contract, actorID string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Role", "Items done", "Updated"})
	for _, c := range items {
		role := "counterpart"
		if c.CreatedBy == actorID {
			role = "creator"
		}
		done, total := 0, len(c.Conditions)+len(c.Counterparts)
		for _, cond := range c.Conditions {
			if cond.Status == domain.ItemCompleted {
				done++
			}
		}
		for _, cp := range c.Counterparts {
			if cp.Status == domain.ItemCompleted {
				done++
			}
		}
		tw.AppendRow(table.Row{c.ID, c.Title, c.Status, role, fmt.Sprintf("%d/%d", done, total), c.UpdatedAt})
	}
	tw.Render()
}

func renderUserTable(users []domain.User) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Email", "Admin"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.DisplayName, u.Email, u.IsAdmin})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
