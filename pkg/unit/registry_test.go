package unit_test

import (
	"errors"
	"testing"

	"github.com/marionette/marionette/pkg/metadata"
	"github.com/marionette/marionette/pkg/mocks"
	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

func newTestRegistry() (*unit.Registry, *mocks.MockLoader) {
	r := unit.NewRegistry(nil, nil)
	ldr := &mocks.MockLoader{}
	r.RegisterLoader(types.DefaultLoader, ldr)
	return r, ldr
}

func cand(name string, priority int, deps ...string) types.Candidate {
	refs := make([]types.Ref, len(deps))
	for i, d := range deps {
		refs[i] = types.NewRef("test/units", d)
	}
	return types.Candidate{
		Ref:       types.NewRef("test/units", name),
		Name:      name,
		Priority:  priority,
		DependsOn: refs,
	}
}

func assertNames(t *testing.T, records []*unit.Record, want ...string) {
	t.Helper()
	got := make([]string, len(records))
	for i, u := range records {
		got[i] = u.Name()
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestInitializeAllStartsInDependencyOrder(t *testing.T) {
	r, ldr := newTestRegistry()

	started, err := r.InitializeAll([]types.Candidate{
		cand("app", 0, "db"),
		cand("db", 0),
	})
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	assertNames(t, started, "db", "app")

	created := ldr.Created()
	if len(created) != 2 || created[0] != "db" || created[1] != "app" {
		t.Errorf("expected loader order [db app], got %v", created)
	}

	for _, u := range started {
		if u.State() != types.UnitStateRunning {
			t.Errorf("expected %s running, got %s", u.Name(), u.State())
		}
	}
}

func TestInitializeAllAbortsOnFirstStartFailure(t *testing.T) {
	r, ldr := newTestRegistry()
	ldr.CreateFunc = func(u *unit.Record) (interface{}, error) {
		if u.Name() == "b" {
			return nil, errors.New("boom")
		}
		return nil, nil
	}

	started, err := r.InitializeAll([]types.Candidate{
		cand("a", 0),
		cand("b", 0, "a"),
		cand("c", 0, "b"),
	})
	if err == nil {
		t.Fatal("expected start failure to surface")
	}

	var initErr *unit.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *InitError, got %T: %v", err, err)
	}
	if initErr.Unit != "b" {
		t.Errorf("expected failure attributed to b, got %s", initErr.Unit)
	}

	assertNames(t, started, "a")

	b, _ := r.Get(types.NewRef("test/units", "b"))
	if b.State() != types.UnitStateFailed {
		t.Errorf("expected b failed, got %s", b.State())
	}
	c, _ := r.Get(types.NewRef("test/units", "c"))
	if c.State() != types.UnitStateIdle {
		t.Errorf("expected c never started, got %s", c.State())
	}
}

func TestInitializeAllRejectsDuplicates(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.InitializeAll([]types.Candidate{
		cand("a", 0),
		cand("a", 0),
	})
	if !errors.Is(err, unit.ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit, got %v", err)
	}
	if len(r.Units()) != 0 {
		t.Errorf("duplicate batch must register nothing")
	}

	if _, err := r.InitializeAll([]types.Candidate{cand("a", 0)}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	_, err = r.InitializeAll([]types.Candidate{cand("a", 0)})
	if !errors.Is(err, unit.ErrDuplicateUnit) {
		t.Fatalf("expected ErrDuplicateUnit across batches, got %v", err)
	}
}

func TestInitializeAllCycleIsAtomic(t *testing.T) {
	r, ldr := newTestRegistry()

	_, err := r.InitializeAll([]types.Candidate{
		cand("x", 0, "y"),
		cand("y", 0, "x"),
	})

	var resErr *unit.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %v", err)
	}
	if len(r.Units()) != 0 {
		t.Errorf("cyclic batch must register nothing")
	}
	if len(ldr.Created()) != 0 {
		t.Errorf("cyclic batch must start nothing")
	}
}

func TestInitializeAllMissingDependency(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.InitializeAll([]types.Candidate{
		cand("app", 0, "missing"),
	})
	var resErr *unit.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolutionError, got %v", err)
	}
}

func TestBuilderVetoIsBatchFatal(t *testing.T) {
	r, ldr := newTestRegistry()
	r.GlobalHandlers().Add(&mocks.MockHandler{RejectBuilder: true})

	_, err := r.InitializeAll([]types.Candidate{cand("a", 0)})

	var rejErr *unit.RejectionError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected *RejectionError, got %v", err)
	}
	if rejErr.Op != "builder" {
		t.Errorf("expected builder gate, got %s", rejErr.Op)
	}
	if len(r.Units()) != 0 || len(ldr.Created()) != 0 {
		t.Errorf("vetoed batch must register and start nothing")
	}
}

func TestRecordVetoIsBatchFatal(t *testing.T) {
	r, _ := newTestRegistry()
	r.GlobalHandlers().Add(&mocks.MockHandler{RejectRecord: true})

	_, err := r.InitializeAll([]types.Candidate{cand("a", 0)})

	var rejErr *unit.RejectionError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected *RejectionError, got %v", err)
	}
	if rejErr.Op != "record" {
		t.Errorf("expected record gate, got %s", rejErr.Op)
	}
	if len(r.Units()) != 0 {
		t.Errorf("vetoed batch must register nothing")
	}
}

func TestInterruptAllReversesStartOrder(t *testing.T) {
	r, ldr := newTestRegistry()

	started, err := r.InitializeAll([]types.Candidate{
		cand("a", 0),
		cand("b", 0, "a"),
		cand("c", 0, "b"),
	})
	if err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	assertNames(t, started, "a", "b", "c")

	if err := r.InterruptAll(); err != nil {
		t.Fatalf("InterruptAll failed: %v", err)
	}

	destroyed := ldr.Destroyed()
	if len(destroyed) != 3 || destroyed[0] != "c" || destroyed[1] != "b" || destroyed[2] != "a" {
		t.Errorf("expected teardown order [c b a], got %v", destroyed)
	}
	for _, u := range r.Units() {
		if u.State() != types.UnitStateIdle {
			t.Errorf("expected %s idle, got %s", u.Name(), u.State())
		}
	}
}

func TestInterruptAllContinuesPastFailures(t *testing.T) {
	r, ldr := newTestRegistry()
	ldr.DestroyFunc = func(u *unit.Record, _ interface{}) error {
		if u.Name() == "b" {
			return errors.New("stuck")
		}
		return nil
	}
	// b has no close handlers, so the failure comes from teardown and
	// the unit still ends idle.
	if _, err := r.InitializeAll([]types.Candidate{
		cand("a", 0),
		cand("b", 0),
		cand("c", 0),
	}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}

	err := r.InterruptAll()
	if err == nil {
		t.Fatal("expected joined teardown error")
	}

	destroyed := ldr.Destroyed()
	if len(destroyed) != 3 {
		t.Errorf("a failure must not stop the sweep, got %v", destroyed)
	}
}

func TestCloseUnitBlockedByDependant(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.InitializeAll([]types.Candidate{
		cand("db", 0),
		cand("app", 0, "db"),
	}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}

	err := r.CloseUnit(types.NewRef("test/units", "db"))
	var depErr *unit.DependentsError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected *DependentsError, got %v", err)
	}

	if err := r.CloseUnit(types.NewRef("test/units", "app")); err != nil {
		t.Fatalf("CloseUnit(app) failed: %v", err)
	}
	if err := r.CloseUnit(types.NewRef("test/units", "db")); err != nil {
		t.Fatalf("CloseUnit(db) after dependant failed: %v", err)
	}
}

func TestCategoryIdentityIsCaseInsensitive(t *testing.T) {
	r, _ := newTestRegistry()

	if r.Category("Storage") != r.Category("storage") {
		t.Error("expected the same category instance for folded names")
	}
	if r.Category("STORAGE").Name() != "Storage" {
		t.Error("expected the first registered casing to stick")
	}
}

func TestAddToCategoryVetoLeavesMembershipUnchanged(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.InitializeAll([]types.Candidate{cand("a", 0)}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	u, _ := r.Get(types.NewRef("test/units", "a"))

	r.Category("storage").Handlers().Add(&mocks.MockHandler{RejectRecord: true})

	err := r.AddToCategory(u, "storage")
	var rejErr *unit.RejectionError
	if !errors.As(err, &rejErr) {
		t.Fatalf("expected *RejectionError, got %v", err)
	}
	if len(u.Categories()) != 0 {
		t.Errorf("vetoed membership must leave the unit's set unchanged")
	}
	if len(r.CategoryMembers("storage")) != 0 {
		t.Errorf("vetoed membership must not appear in the member view")
	}
}

func TestCategoryMembersIsLiveView(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.InitializeAll([]types.Candidate{
		cand("a", 0),
		cand("b", 0),
	}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	a, _ := r.Get(types.NewRef("test/units", "a"))
	b, _ := r.Get(types.NewRef("test/units", "b"))

	if err := r.AddToCategory(a, "web"); err != nil {
		t.Fatalf("AddToCategory failed: %v", err)
	}
	assertNames(t, r.CategoryMembers("Web"), "a")

	if err := r.AddToCategory(b, "WEB"); err != nil {
		t.Fatalf("AddToCategory failed: %v", err)
	}
	assertNames(t, r.CategoryMembers("web"), "a", "b")

	if err := r.RemoveFromCategory(a, "web"); err != nil {
		t.Fatalf("RemoveFromCategory failed: %v", err)
	}
	assertNames(t, r.CategoryMembers("web"), "b")
}

func TestFindFiltersByAttributes(t *testing.T) {
	r, _ := newTestRegistry()

	withAttrs := cand("db", 0)
	withAttrs.Attributes = map[string]interface{}{"tier": 1, "kind": "storage"}
	plain := cand("app", 0)

	if _, err := r.InitializeAll([]types.Candidate{withAttrs, plain}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}

	assertNames(t, r.Find(metadata.HasKey("tier")), "db")
	assertNames(t, r.Find(metadata.Equals("kind", "storage"), metadata.IntInRange("tier", 0, 5)), "db")
	if got := r.Find(metadata.Equals("kind", "web")); len(got) != 0 {
		t.Errorf("expected no match, got %d records", len(got))
	}
}

func TestRemoveGuards(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.InitializeAll([]types.Candidate{
		cand("db", 0),
		cand("app", 0, "db"),
	}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}
	dbRef := types.NewRef("test/units", "db")
	appRef := types.NewRef("test/units", "app")

	if err := r.Remove(dbRef); !errors.Is(err, unit.ErrUnitInUse) {
		t.Fatalf("expected ErrUnitInUse for a running unit, got %v", err)
	}

	if err := r.InterruptAll(); err != nil {
		t.Fatalf("InterruptAll failed: %v", err)
	}

	// Inactive, but app still depends on db.
	if err := r.Remove(dbRef); !errors.Is(err, unit.ErrUnitInUse) {
		t.Fatalf("expected ErrUnitInUse for a depended-on unit, got %v", err)
	}

	if err := r.Remove(appRef); err != nil {
		t.Fatalf("Remove(app) failed: %v", err)
	}
	if err := r.Remove(dbRef); err != nil {
		t.Fatalf("Remove(db) after dependant removal failed: %v", err)
	}
	if _, ok := r.Get(dbRef); ok {
		t.Error("expected db to be gone")
	}
	if err := r.Remove(dbRef); !errors.Is(err, unit.ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestStartUnknownUnit(t *testing.T) {
	r, _ := newTestRegistry()
	err := r.StartUnit(types.NewRef("test/units", "missing"))
	if !errors.Is(err, unit.ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
}
