package notifier

import (
	"fmt"

	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// FailureHandler is a lifecycle handler that raises a notification
// whenever a unit lands in the failed state. Install it on the global
// chain to cover every unit.
type FailureHandler struct {
	unit.BaseHandler
	notifier *Notifier
}

// NewFailureHandler creates a handler backed by the given notifier
func NewFailureHandler(n *Notifier) *FailureHandler {
	return &FailureHandler{notifier: n}
}

// OnStateChanged notifies on transitions into the failed state
func (h *FailureHandler) OnStateChanged(u *unit.Record, previous types.UnitState) {
	if u.State() == types.UnitStateFailed {
		h.notifier.NotifyUnitFailed(u.Name(),
			fmt.Errorf("failed while %s", previous))
	}
}
