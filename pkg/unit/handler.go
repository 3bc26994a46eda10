package unit

import "github.com/marionette/marionette/pkg/types"

// Handler observes and gates unit lifecycle events. Handlers are
// attached to a single unit, to a category, or globally; dispatch
// visits those tiers in that order and the first veto or error halts
// the chain and fails the enclosing operation.
type Handler interface {
	// AcceptBuilder may veto admission of a candidate before its
	// record is ever constructed. Invoked exactly once per candidate.
	AcceptBuilder(b *Builder) bool

	// AcceptRecord validates a record after construction and again
	// around every category membership mutation.
	AcceptRecord(u *Record) bool

	// OnStateChanged is notified after every real state transition
	// with the state the unit left.
	OnStateChanged(u *Record, previous types.UnitState)

	// OnStart is dispatched before the unit's payload is created.
	// An error fails the start and routes the unit to failed.
	OnStart(u *Record) error

	// OnClose is dispatched before the unit's payload is torn down.
	OnClose(u *Record) error

	// OnRun is notified once the unit holds a live payload.
	OnRun(u *Record)
}

// BaseHandler accepts everything and ignores every notification.
// Embed it to implement only the methods a handler cares about.
type BaseHandler struct{}

// AcceptBuilder accepts the candidate
func (BaseHandler) AcceptBuilder(*Builder) bool { return true }

// AcceptRecord accepts the record
func (BaseHandler) AcceptRecord(*Record) bool { return true }

// OnStateChanged ignores the transition
func (BaseHandler) OnStateChanged(*Record, types.UnitState) {}

// OnStart accepts the start
func (BaseHandler) OnStart(*Record) error { return nil }

// OnClose accepts the close
func (BaseHandler) OnClose(*Record) error { return nil }

// OnRun ignores the notification
func (BaseHandler) OnRun(*Record) {}
