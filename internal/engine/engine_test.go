package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/migrate"
	"pactline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	seq := 0
	eng.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	ctx := context.Background()
	for _, u := range []engine.RegisterUserOpts{
		{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"},
		{ID: "bob", DisplayName: "Bob", Email: "bob@example.com"},
		{ID: "carol", DisplayName: "Carol", Email: "carol@example.com"},
		{ID: "root", DisplayName: "Root", Email: "root@example.com", IsAdmin: true},
	} {
		if _, err := eng.RegisterUser(ctx, u); err != nil {
			t.Fatalf("register %s: %v", u.ID, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func basicDraft() engine.Draft {
	return engine.Draft{
		Title:             "Garden for guitar lessons",
		CounterpartUserID: "bob",
		Conditions:        []engine.DraftCondition{{Description: "Mow the lawn weekly"}},
		Counterparts:      []engine.DraftCounterpart{{Description: "One guitar lesson per week"}},
	}
}

func mustCreate(t *testing.T, env testEnv, d engine.Draft) domain.Contract {
	t.Helper()
	c, err := env.Engine.CreateContract(env.Ctx, "alice", d)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func mustActivate(t *testing.T, env testEnv, id string) domain.Contract {
	t.Helper()
	c, err := env.Engine.Activate(env.Ctx, "alice", id)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return c
}

func validationReason(t *testing.T, err error) engine.ValidationReason {
	t.Helper()
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	return ve.Reason
}

func preconditionReason(t *testing.T, err error) engine.PreconditionReason {
	t.Helper()
	var pe engine.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	return pe.Reason
}

func TestDraftValidationOrder(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateContract(env.Ctx, "alice", engine.Draft{})
	if got := validationReason(t, err); got != engine.EmptyTitle {
		t.Fatalf("expected empty_title, got %s", got)
	}

	// Empty title wins even when everything else is also missing.
	_, err = env.Engine.CreateContract(env.Ctx, "alice", engine.Draft{CounterpartUserID: "bob"})
	if got := validationReason(t, err); got != engine.EmptyTitle {
		t.Fatalf("expected empty_title, got %s", got)
	}

	d := basicDraft()
	d.CounterpartUserID = ""
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.NoCounterpartSelected {
		t.Fatalf("expected no_counterpart_selected, got %s", got)
	}

	// Naming yourself as counterpart is the same failure.
	d = basicDraft()
	d.CounterpartUserID = "alice"
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.NoCounterpartSelected {
		t.Fatalf("expected no_counterpart_selected, got %s", got)
	}

	d = basicDraft()
	d.Conditions = nil
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.MissingObligations {
		t.Fatalf("expected missing_obligations, got %s", got)
	}

	d = basicDraft()
	d.Counterparts = nil
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.MissingObligations {
		t.Fatalf("expected missing_obligations, got %s", got)
	}

	d = basicDraft()
	d.Counterparts = append(d.Counterparts, engine.DraftCounterpart{Description: ""})
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.EmptyDescription {
		t.Fatalf("expected empty_description, got %s", got)
	}

	// Unknown counterpart user is rejected before anything is stored.
	d = basicDraft()
	d.CounterpartUserID = "nobody"
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestDraftRejectsOutsiderResponsible(t *testing.T) {
	env := newTestEnv(t)

	// Naming a third user as responsible would hand them completion authority.
	d := basicDraft()
	d.Conditions[0].AssignedTo = "carol"
	_, err := env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.ResponsibleNotParticipant {
		t.Fatalf("expected responsible_not_participant, got %s", got)
	}

	d = basicDraft()
	d.Counterparts[0].ProvidedBy = "carol"
	_, err = env.Engine.CreateContract(env.Ctx, "alice", d)
	if got := validationReason(t, err); got != engine.ResponsibleNotParticipant {
		t.Fatalf("expected responsible_not_participant, got %s", got)
	}

	// Either participant is fine, in either list.
	d = basicDraft()
	d.Conditions[0].AssignedTo = "alice"
	d.Counterparts[0].ProvidedBy = "bob"
	c := mustCreate(t, env, d)
	for _, uid := range []string{c.Conditions[0].AssignedTo, c.Counterparts[0].ProvidedBy} {
		if !c.IsParticipant(uid) {
			t.Fatalf("responsible %s is not a participant of %v", uid, c.Participants)
		}
	}
}

func TestCreateContractShape(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	if c.Status != domain.ContractPending {
		t.Fatalf("expected pending, got %s", c.Status)
	}
	if c.CreatedBy != "alice" {
		t.Fatalf("createdBy = %s", c.CreatedBy)
	}
	if len(c.Participants) != 2 || c.Participants[0] != "alice" || c.Participants[1] != "bob" {
		t.Fatalf("participants = %v", c.Participants)
	}
	if len(c.Conditions) != 1 || len(c.Counterparts) != 1 {
		t.Fatalf("items = %d/%d", len(c.Conditions), len(c.Counterparts))
	}
	cond := c.Conditions[0]
	if cond.Status != domain.ItemPending || cond.CompletedAt != nil || len(cond.VerifiedBy) != 0 {
		t.Fatalf("fresh condition not pristine: %+v", cond)
	}
	// Unassigned items default to the natural owner of each list.
	if cond.AssignedTo != "bob" {
		t.Fatalf("condition assignedTo = %s", cond.AssignedTo)
	}
	if c.Counterparts[0].ProvidedBy != "alice" {
		t.Fatalf("counterpart providedBy = %s", c.Counterparts[0].ProvidedBy)
	}

	// And the persisted snapshot round-trips.
	got, err := env.Engine.GetContract(env.Ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ContractPending || len(got.Conditions) != 1 || len(got.Counterparts) != 1 {
		t.Fatalf("persisted contract mismatch: %+v", got)
	}
	if got.Conditions[0].VerifiedBy == nil {
		t.Fatalf("verifiedBy should round-trip as empty slice")
	}
}

func TestActivation(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	// Counterpart cannot activate, even as participant.
	_, err := env.Engine.Activate(env.Ctx, "bob", c.ID)
	var npe auth.NotPermittedError
	if !errors.As(err, &npe) {
		t.Fatalf("expected NotPermittedError, got %v", err)
	}
	// Still pending after the refused attempt.
	got, _ := env.Engine.GetContract(env.Ctx, "alice", c.ID)
	if got.Status != domain.ContractPending {
		t.Fatalf("status after refused activation = %s", got.Status)
	}

	c = mustActivate(t, env, c.ID)
	if c.Status != domain.ContractActive {
		t.Fatalf("expected active, got %s", c.Status)
	}

	_, err = env.Engine.Activate(env.Ctx, "alice", c.ID)
	if got := preconditionReason(t, err); got != engine.ContractNotPending {
		t.Fatalf("expected contract_not_pending, got %s", got)
	}
}

func TestCompletionRequiresActiveContract(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	_, err := env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, c.Conditions[0].ID)
	if got := preconditionReason(t, err); got != engine.ContractNotActive {
		t.Fatalf("expected contract_not_active, got %s", got)
	}
}

func TestCompletionAuthorization(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())
	c = mustActivate(t, env, c.ID)
	condID := c.Conditions[0].ID
	cpID := c.Counterparts[0].ID

	// An outsider may not complete anything.
	_, err := env.Engine.CompleteCondition(env.Ctx, "carol", c.ID, condID)
	var npe auth.NotPermittedError
	if !errors.As(err, &npe) {
		t.Fatalf("expected NotPermittedError for outsider, got %v", err)
	}

	// The counterpart user may not complete the creator's counterpart item.
	_, err = env.Engine.CompleteCounterpart(env.Ctx, "bob", c.ID, cpID)
	if !errors.As(err, &npe) {
		t.Fatalf("expected NotPermittedError for non-provider, got %v", err)
	}

	// The responsible party completes their own item.
	c2, err := env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, condID)
	if err != nil {
		t.Fatalf("responsible completion: %v", err)
	}
	if c2.Conditions[0].Status != domain.ItemCompleted {
		t.Fatalf("condition not completed")
	}

	// The creator may complete any item, own or not.
	c3, err := env.Engine.CompleteCounterpart(env.Ctx, "alice", c.ID, cpID)
	if err != nil {
		t.Fatalf("creator completion: %v", err)
	}
	if c3.Counterparts[0].Status != domain.ItemCompleted {
		t.Fatalf("counterpart not completed")
	}
}

func TestCompletionEffectsAndIdempotence(t *testing.T) {
	env := newTestEnv(t)
	d := basicDraft()
	d.Conditions = append(d.Conditions, engine.DraftCondition{Description: "Weed the beds"})
	c := mustCreate(t, env, d)
	c = mustActivate(t, env, c.ID)
	condID := c.Conditions[0].ID

	c, err := env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, condID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	cond, _ := c.Condition(condID)
	if cond.CompletedAt == nil || *cond.CompletedAt == "" {
		t.Fatalf("completedAt not set")
	}
	if len(cond.VerifiedBy) != 1 || cond.VerifiedBy[0] != "bob" {
		t.Fatalf("verifiedBy = %v", cond.VerifiedBy)
	}
	firstCompletedAt := *cond.CompletedAt

	// A second completion of the same item is rejected and changes nothing,
	// regardless of who asks.
	_, err = env.Engine.CompleteCondition(env.Ctx, "alice", c.ID, condID)
	if got := preconditionReason(t, err); got != engine.ItemAlreadyCompleted {
		t.Fatalf("expected item_already_completed, got %s", got)
	}
	got, _ := env.Engine.GetContract(env.Ctx, "alice", c.ID)
	cond, _ = got.Condition(condID)
	if *cond.CompletedAt != firstCompletedAt || len(cond.VerifiedBy) != 1 {
		t.Fatalf("rejected completion mutated the item: %+v", cond)
	}

	// Unknown item ids are a distinct failure.
	_, err = env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, "missing")
	if !errors.Is(err, engine.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestAggregationIsExact(t *testing.T) {
	env := newTestEnv(t)
	d := basicDraft()
	d.Conditions = append(d.Conditions, engine.DraftCondition{Description: "Trim the hedge"})
	c := mustCreate(t, env, d)
	c = mustActivate(t, env, c.ID)

	c, err := env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, c.Conditions[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.ContractActive {
		t.Fatalf("one of three done, status = %s", c.Status)
	}

	c, err = env.Engine.CompleteCounterpart(env.Ctx, "alice", c.ID, c.Counterparts[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.ContractActive {
		t.Fatalf("two of three done, status = %s", c.Status)
	}

	c, err = env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, c.Conditions[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.ContractCompleted {
		t.Fatalf("all done, status = %s", c.Status)
	}

	// Completed is terminal: nothing more can be completed.
	_, err = env.Engine.CompleteCondition(env.Ctx, "alice", c.ID, c.Conditions[0].ID)
	if got := preconditionReason(t, err); got != engine.ContractNotActive {
		t.Fatalf("expected contract_not_active on completed contract, got %s", got)
	}
	_, err = env.Engine.Activate(env.Ctx, "alice", c.ID)
	if got := preconditionReason(t, err); got != engine.ContractNotPending {
		t.Fatalf("expected contract_not_pending on completed contract, got %s", got)
	}
}

func TestAggregationOrderIndependence(t *testing.T) {
	env := newTestEnv(t)

	type step struct {
		kind  string
		index int
		actor string
	}
	run := func(order []step) domain.ContractStatus {
		t.Helper()
		d := basicDraft()
		d.Conditions = append(d.Conditions, engine.DraftCondition{Description: "Rake the leaves"})
		c := mustCreate(t, env, d)
		c = mustActivate(t, env, c.ID)
		for _, s := range order {
			var err error
			if s.kind == "condition" {
				_, err = env.Engine.CompleteCondition(env.Ctx, s.actor, c.ID, c.Conditions[s.index].ID)
			} else {
				_, err = env.Engine.CompleteCounterpart(env.Ctx, s.actor, c.ID, c.Counterparts[s.index].ID)
			}
			if err != nil {
				t.Fatalf("step %+v: %v", s, err)
			}
		}
		got, err := env.Engine.GetContract(env.Ctx, "alice", c.ID)
		if err != nil {
			t.Fatal(err)
		}
		return got.Status
	}

	orders := [][]step{
		{{"condition", 0, "bob"}, {"condition", 1, "bob"}, {"counterpart", 0, "alice"}},
		{{"counterpart", 0, "alice"}, {"condition", 0, "bob"}, {"condition", 1, "bob"}},
		{{"condition", 1, "bob"}, {"counterpart", 0, "alice"}, {"condition", 0, "bob"}},
	}
	for i, order := range orders {
		if status := run(order); status != domain.ContractCompleted {
			t.Fatalf("order %d: final status = %s", i, status)
		}
	}
}

func TestStaleWriteConflict(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	// Two writers read rev 0; the second status write must lose.
	ts := "2024-01-02T00:00:00Z"
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.BumpContract(env.Ctx, tx, c.ID, c.Rev, domain.ContractActive, ts); err != nil {
		t.Fatalf("first bump: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err = env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.BumpContract(env.Ctx, tx, c.ID, c.Rev, domain.ContractActive, ts)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestContractVisibility(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	if _, err := env.Engine.GetContract(env.Ctx, "bob", c.ID); err != nil {
		t.Fatalf("participant read: %v", err)
	}
	var npe auth.NotPermittedError
	if _, err := env.Engine.GetContract(env.Ctx, "carol", c.ID); !errors.As(err, &npe) {
		t.Fatalf("expected NotPermittedError for outsider, got %v", err)
	}
	// Admins see everything.
	if _, err := env.Engine.GetContract(env.Ctx, "root", c.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	mine, err := env.Engine.ListContracts(env.Ctx, "bob")
	if err != nil || len(mine) != 1 {
		t.Fatalf("bob's list = %v (%v)", mine, err)
	}
	theirs, err := env.Engine.ListContracts(env.Ctx, "carol")
	if err != nil || len(theirs) != 0 {
		t.Fatalf("carol's list = %v (%v)", theirs, err)
	}
}

func TestInvitationFlow(t *testing.T) {
	env := newTestEnv(t)

	inv, err := env.Engine.SendInvitation(env.Ctx, "alice", "bob@example.com")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if inv.Status != domain.InvitationPending || inv.ToUser != "bob" {
		t.Fatalf("invitation = %+v", inv)
	}

	// Only the recipient responds.
	var npe auth.NotPermittedError
	if _, err := env.Engine.RespondInvitation(env.Ctx, "carol", inv.ID, true); !errors.As(err, &npe) {
		t.Fatalf("expected NotPermittedError, got %v", err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, "alice", inv.ID, true); !errors.As(err, &npe) {
		t.Fatalf("sender must not respond, got %v", err)
	}

	accepted, err := env.Engine.RespondInvitation(env.Ctx, "bob", inv.ID, true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.InvitationAccepted || accepted.RespondedAt == nil {
		t.Fatalf("accepted = %+v", accepted)
	}

	// Acceptance links both directions.
	alice, _ := env.Engine.GetUser(env.Ctx, "alice")
	bob, _ := env.Engine.GetUser(env.Ctx, "bob")
	if len(alice.Contacts) != 1 || alice.Contacts[0] != "bob" {
		t.Fatalf("alice contacts = %v", alice.Contacts)
	}
	if len(bob.Contacts) != 1 || bob.Contacts[0] != "alice" {
		t.Fatalf("bob contacts = %v", bob.Contacts)
	}

	// A settled invitation cannot be responded to again.
	if _, err := env.Engine.RespondInvitation(env.Ctx, "bob", inv.ID, false); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInvitationReject(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.SendInvitation(env.Ctx, "alice", "carol@example.com")
	if err != nil {
		t.Fatal(err)
	}
	rejected, err := env.Engine.RespondInvitation(env.Ctx, "carol", inv.ID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.InvitationRejected {
		t.Fatalf("status = %s", rejected.Status)
	}
	alice, _ := env.Engine.GetUser(env.Ctx, "alice")
	if len(alice.Contacts) != 0 {
		t.Fatalf("rejection must not link contacts: %v", alice.Contacts)
	}
}

func TestAdminOperations(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())

	var are auth.AdminRequiredError
	if _, err := env.Engine.AdminListContracts(env.Ctx, "alice"); !errors.As(err, &are) {
		t.Fatalf("expected AdminRequiredError, got %v", err)
	}
	if err := env.Engine.AdminDeleteContract(env.Ctx, "bob", c.ID); !errors.As(err, &are) {
		t.Fatalf("expected AdminRequiredError, got %v", err)
	}

	all, err := env.Engine.AdminListContracts(env.Ctx, "root")
	if err != nil || len(all) != 1 {
		t.Fatalf("admin list = %v (%v)", all, err)
	}
	if err := env.Engine.AdminDeleteContract(env.Ctx, "root", c.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := env.Engine.GetContract(env.Ctx, "root", c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUserSearch(t *testing.T) {
	env := newTestEnv(t)

	hits, err := env.Engine.SearchUsers(env.Ctx, "alice", "bo")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "bob" {
		t.Fatalf("hits = %v", hits)
	}

	// The searcher never appears in their own results.
	hits, err = env.Engine.SearchUsers(env.Ctx, "bob", "bob@")
	if err != nil || len(hits) != 0 {
		t.Fatalf("self hit = %v (%v)", hits, err)
	}

	// Below the minimum prefix the search returns nothing.
	hits, err = env.Engine.SearchUsers(env.Ctx, "alice", "b")
	if err != nil || len(hits) != 0 {
		t.Fatalf("short prefix = %v (%v)", hits, err)
	}

	// LIKE wildcards in the prefix are literals, not a directory dump.
	hits, err = env.Engine.SearchUsers(env.Ctx, "alice", "%%")
	if err != nil || len(hits) != 0 {
		t.Fatalf("wildcard prefix = %v (%v)", hits, err)
	}
	hits, err = env.Engine.SearchUsers(env.Ctx, "alice", "__b")
	if err != nil || len(hits) != 0 {
		t.Fatalf("underscore prefix = %v (%v)", hits, err)
	}
}

func TestEventLog(t *testing.T) {
	env := newTestEnv(t)
	c := mustCreate(t, env, basicDraft())
	c = mustActivate(t, env, c.ID)
	if _, err := env.Engine.CompleteCondition(env.Ctx, "bob", c.ID, c.Conditions[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteCounterpart(env.Ctx, "alice", c.ID, c.Counterparts[0].ID); err != nil {
		t.Fatal(err)
	}

	// The log spans all users, so plain participants are refused.
	var are auth.AdminRequiredError
	if _, err := env.Engine.LatestEvents(env.Ctx, "alice", 50, c.ID, ""); !errors.As(err, &are) {
		t.Fatalf("expected AdminRequiredError, got %v", err)
	}

	evts, err := env.Engine.LatestEvents(env.Ctx, "root", 50, c.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	// created, activated, condition, counterpart, contract completed.
	if len(evts) != 5 {
		t.Fatalf("event count = %d", len(evts))
	}
	// Newest first: the promotion event tops the log.
	if evts[0].Type != "contract.completed" {
		t.Fatalf("latest event = %s", evts[0].Type)
	}

	only, err := env.Engine.LatestEvents(env.Ctx, "root", 50, c.ID, "condition.completed")
	if err != nil || len(only) != 1 {
		t.Fatalf("filtered events = %v (%v)", only, err)
	}
}
