package unit

import "strings"

// Category is a named, case-insensitive group of units sharing
// cross-cutting handlers. A category is itself a handler: during
// dispatch it is visited before the handlers in its own chain.
// Custom implementations embed BasicCategory and override the
// Handler methods they care about.
type Category interface {
	Handler

	// Name returns the category name as first registered
	Name() string

	// Handlers returns the category's own handler chain
	Handlers() *HandlerChain
}

// FoldCategoryName normalizes a category name for identity comparison.
// Two categories whose names are equal under folding are the same
// category.
func FoldCategoryName(name string) string {
	return strings.ToLower(name)
}

// BasicCategory is the framework-default category: it accepts every
// unit and ignores every notification.
type BasicCategory struct {
	BaseHandler
	name     string
	handlers *HandlerChain
}

// NewCategory creates a category with default handler configuration
func NewCategory(name string) *BasicCategory {
	return &BasicCategory{
		name:     name,
		handlers: NewHandlerChain(),
	}
}

// Name returns the category name
func (c *BasicCategory) Name() string { return c.name }

// Handlers returns the category's handler chain
func (c *BasicCategory) Handlers() *HandlerChain { return c.handlers }
