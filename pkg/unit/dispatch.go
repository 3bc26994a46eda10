package unit

import "github.com/marionette/marionette/pkg/types"

// Dispatch tier labels used in handler errors.
const (
	tierUnit   = "unit"
	tierGlobal = "global"
)

func tierCategory(c Category) string {
	return "category:" + c.Name()
}

// visitTiers walks the three dispatch tiers for a record: the unit's
// own chain, then each category (the category itself first, then its
// chain) in membership order, then the global chain. The walk stops at
// the first non-nil error.
func visitTiers(u *Record, global *HandlerChain, visit func(tier string, h Handler) error) error {
	for _, h := range u.Handlers().Handlers() {
		if err := visit(tierUnit, h); err != nil {
			return err
		}
	}
	for _, c := range u.Categories() {
		if err := visit(tierCategory(c), c); err != nil {
			return err
		}
		for _, h := range c.Handlers().Handlers() {
			if err := visit(tierCategory(c), h); err != nil {
				return err
			}
		}
	}
	if global != nil {
		for _, h := range global.Handlers() {
			if err := visit(tierGlobal, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// acceptRecord runs the AcceptRecord gate over the given tiers. A
// false return halts dispatch and surfaces as a rejection.
func acceptRecord(u *Record, global *HandlerChain, op string) error {
	return visitTiers(u, global, func(tier string, h Handler) error {
		if !h.AcceptRecord(u) {
			return &RejectionError{Unit: u.Name(), Tier: tier, Op: op}
		}
		return nil
	})
}

// notifyStateChanged fans the transition out to every tier. State
// change notifications cannot veto or fail.
func notifyStateChanged(u *Record, global *HandlerChain, previous types.UnitState) {
	_ = visitTiers(u, global, func(tier string, h Handler) error {
		h.OnStateChanged(u, previous)
		return nil
	})
}
