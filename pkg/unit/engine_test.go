package unit

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/marionette/marionette/pkg/types"
)

// stubLoader is a controllable loader for engine tests
type stubLoader struct {
	payload    interface{}
	createErr  error
	destroyErr error

	mu        sync.Mutex
	created   int
	destroyed int
}

func (l *stubLoader) Create(u *Record) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.created++
	return l.payload, nil
}

func (l *stubLoader) Destroy(u *Record, payload interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed++
	return l.destroyErr
}

// recorder is a handler that logs its callbacks to a shared trace
type recorder struct {
	BaseHandler
	label    string
	trace    *[]string
	traceMu  *sync.Mutex
	startErr error
	closeErr error
}

func newTrace() (*[]string, *sync.Mutex) {
	return &[]string{}, &sync.Mutex{}
}

func (r *recorder) log(event string) {
	r.traceMu.Lock()
	defer r.traceMu.Unlock()
	*r.trace = append(*r.trace, r.label+event)
}

func (r *recorder) OnStateChanged(u *Record, previous types.UnitState) {
	r.log(fmt.Sprintf("state:%s->%s", previous, u.State()))
}

func (r *recorder) OnStart(u *Record) error {
	r.log("start")
	return r.startErr
}

func (r *recorder) OnClose(u *Record) error {
	r.log("close")
	return r.closeErr
}

func (r *recorder) OnRun(u *Record) {
	r.log("run")
}

func newTestEngine(ldr Loader) (*Engine, *HandlerChain) {
	global := NewHandlerChain()
	e := NewEngine(nil, global)
	e.RegisterLoader(types.DefaultLoader, ldr)
	return e, global
}

func TestStartRunsFullTransition(t *testing.T) {
	payload := &struct{ name string }{"payload"}
	ldr := &stubLoader{payload: payload}
	e, global := newTestEngine(ldr)

	trace, mu := newTrace()
	global.Add(&recorder{label: "", trace: trace, traceMu: mu})

	u := makeRecord(t, "svc", 0)
	if err := e.Start(u); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := u.State(); got != types.UnitStateRunning {
		t.Errorf("expected running, got %s", got)
	}
	if u.Instance() != payload {
		t.Errorf("expected payload instance to be retained")
	}

	want := []string{"state:idle->starting", "start", "state:starting->running", "run"}
	if len(*trace) != len(want) {
		t.Fatalf("got trace %v, want %v", *trace, want)
	}
	for i := range want {
		if (*trace)[i] != want[i] {
			t.Fatalf("got trace %v, want %v", *trace, want)
		}
	}
}

func TestStartWhileActiveFails(t *testing.T) {
	e, _ := newTestEngine(&stubLoader{})
	u := makeRecord(t, "svc", 0)

	if err := e.Start(u); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	err := e.Start(u)
	if !errors.Is(err, ErrUnitActive) {
		t.Fatalf("expected ErrUnitActive, got %v", err)
	}
}

func TestStartUnknownLoaderFailsWithoutTransition(t *testing.T) {
	global := NewHandlerChain()
	e := NewEngine(nil, global)

	trace, mu := newTrace()
	global.Add(&recorder{trace: trace, traceMu: mu})

	u := makeRecord(t, "svc", 0)
	err := e.Start(u)
	if !errors.Is(err, ErrUnknownLoader) {
		t.Fatalf("expected ErrUnknownLoader, got %v", err)
	}

	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Errorf("expected *InitError, got %T", err)
	}
	if got := u.State(); got != types.UnitStateIdle {
		t.Errorf("expected idle after loader misconfiguration, got %s", got)
	}
	if len(*trace) != 0 {
		t.Errorf("expected no dispatch, got %v", *trace)
	}
}

func TestStartHandlerErrorRoutesToFailed(t *testing.T) {
	ldr := &stubLoader{}
	e, global := newTestEngine(ldr)

	trace, mu := newTrace()
	global.Add(&recorder{trace: trace, traceMu: mu, startErr: errors.New("veto")})

	u := makeRecord(t, "svc", 0)
	err := e.Start(u)
	if err == nil {
		t.Fatal("expected start to fail")
	}

	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *InitError, got %T: %v", err, err)
	}
	var handlerErr *HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected wrapped *HandlerError, got %v", err)
	}
	if handlerErr.Event != "start" {
		t.Errorf("expected start event, got %s", handlerErr.Event)
	}

	if got := u.State(); got != types.UnitStateFailed {
		t.Errorf("expected failed, got %s", got)
	}
	if ldr.created != 0 {
		t.Errorf("loader must not run after a handler failure")
	}
}

func TestStartLoaderErrorRoutesToFailed(t *testing.T) {
	ldr := &stubLoader{createErr: errors.New("no database")}
	e, _ := newTestEngine(ldr)

	u := makeRecord(t, "svc", 0)
	err := e.Start(u)

	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected *InitError, got %T: %v", err, err)
	}
	if got := u.State(); got != types.UnitStateFailed {
		t.Errorf("expected failed, got %s", got)
	}
	if u.Instance() != nil {
		t.Errorf("expected no payload instance after failure")
	}
}

func TestStartAgainAfterFailure(t *testing.T) {
	ldr := &stubLoader{createErr: errors.New("transient")}
	e, _ := newTestEngine(ldr)

	u := makeRecord(t, "svc", 0)
	if err := e.Start(u); err == nil {
		t.Fatal("expected first start to fail")
	}

	ldr.createErr = nil
	if err := e.Start(u); err != nil {
		t.Fatalf("restart after failure failed: %v", err)
	}
	if got := u.State(); got != types.UnitStateRunning {
		t.Errorf("expected running, got %s", got)
	}
}

func TestCloseReturnsToIdle(t *testing.T) {
	ldr := &stubLoader{payload: "payload"}
	e, global := newTestEngine(ldr)

	trace, mu := newTrace()
	rec := &recorder{trace: trace, traceMu: mu}

	u := makeRecord(t, "svc", 0)
	if err := e.Start(u); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	global.Add(rec)

	if err := e.Close(u); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := u.State(); got != types.UnitStateIdle {
		t.Errorf("expected idle, got %s", got)
	}
	if u.Instance() != nil {
		t.Errorf("expected instance cleared")
	}
	if ldr.destroyed != 1 {
		t.Errorf("expected one teardown, got %d", ldr.destroyed)
	}

	want := []string{"state:running->stopping", "close", "state:stopping->idle"}
	if len(*trace) != len(want) {
		t.Fatalf("got trace %v, want %v", *trace, want)
	}
}

func TestCloseInactiveIsNoop(t *testing.T) {
	ldr := &stubLoader{}
	e, global := newTestEngine(ldr)

	trace, mu := newTrace()
	global.Add(&recorder{trace: trace, traceMu: mu})

	u := makeRecord(t, "svc", 0)
	if err := e.Close(u); err != nil {
		t.Fatalf("Close on idle unit failed: %v", err)
	}
	if len(*trace) != 0 {
		t.Errorf("expected no dispatch on no-op close, got %v", *trace)
	}
	if ldr.destroyed != 0 {
		t.Errorf("expected no teardown on no-op close")
	}
}

func TestCloseBlockedByActiveDependant(t *testing.T) {
	e, _ := newTestEngine(&stubLoader{})

	dep := makeRecord(t, "db", 0)
	app := makeRecord(t, "app", 0, dep)
	dep.addDependant(app)

	if err := e.Start(dep); err != nil {
		t.Fatalf("Start(db) failed: %v", err)
	}
	if err := e.Start(app); err != nil {
		t.Fatalf("Start(app) failed: %v", err)
	}

	err := e.Close(dep)
	var depErr *DependentsError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected *DependentsError, got %v", err)
	}
	if len(depErr.Dependants) != 1 || depErr.Dependants[0] != "app" {
		t.Errorf("expected app to block, got %v", depErr.Dependants)
	}
	if got := dep.State(); got != types.UnitStateRunning {
		t.Errorf("blocked close must not change state, got %s", got)
	}

	// Closing the dependant first unblocks the dependency.
	if err := e.Close(app); err != nil {
		t.Fatalf("Close(app) failed: %v", err)
	}
	if err := e.Close(dep); err != nil {
		t.Fatalf("Close(db) after dependant failed: %v", err)
	}
}

func TestCloseHandlerErrorAbortsBeforeTeardown(t *testing.T) {
	ldr := &stubLoader{}
	e, global := newTestEngine(ldr)

	u := makeRecord(t, "svc", 0)
	if err := e.Start(u); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	trace, mu := newTrace()
	global.Add(&recorder{trace: trace, traceMu: mu, closeErr: errors.New("flush failed")})

	err := e.Close(u)
	var shutErr *ShutdownError
	if !errors.As(err, &shutErr) {
		t.Fatalf("expected *ShutdownError, got %v", err)
	}
	if got := u.State(); got != types.UnitStateStopping {
		t.Errorf("expected stopping after aborted close, got %s", got)
	}
	if ldr.destroyed != 0 {
		t.Errorf("teardown must not run after a close handler error")
	}
}

func TestCloseTeardownErrorStillEndsIdle(t *testing.T) {
	ldr := &stubLoader{destroyErr: errors.New("leak")}
	e, _ := newTestEngine(ldr)

	u := makeRecord(t, "svc", 0)
	if err := e.Start(u); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := e.Close(u)
	var shutErr *ShutdownError
	if !errors.As(err, &shutErr) {
		t.Fatalf("expected *ShutdownError, got %v", err)
	}
	if got := u.State(); got != types.UnitStateIdle {
		t.Errorf("teardown failure must still end idle, got %s", got)
	}
	if u.Instance() != nil {
		t.Errorf("expected instance cleared despite teardown failure")
	}
}

func TestDispatchTierOrder(t *testing.T) {
	e, global := newTestEngine(&stubLoader{})

	trace, mu := newTrace()
	u := makeRecord(t, "svc", 0)
	u.Handlers().Add(&recorder{label: "unit/", trace: trace, traceMu: mu})

	cat := NewCategory("storage")
	cat.Handlers().Add(&recorder{label: "category/", trace: trace, traceMu: mu})
	u.addCategory(cat)

	global.Add(&recorder{label: "global/", trace: trace, traceMu: mu})

	if err := e.Start(u); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var starts []string
	for _, ev := range *trace {
		if ev == "unit/start" || ev == "category/start" || ev == "global/start" {
			starts = append(starts, ev)
		}
	}
	want := []string{"unit/start", "category/start", "global/start"}
	if len(starts) != len(want) {
		t.Fatalf("got start dispatch %v, want %v", starts, want)
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Fatalf("got start dispatch %v, want %v", starts, want)
		}
	}
}
