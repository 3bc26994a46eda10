package unit

// Loader is the pluggable strategy that constructs and destroys a
// unit's runtime payload. The engine never inspects the payload; it
// only stores the handle while the unit runs.
type Loader interface {
	// Create produces the payload instance for a record. A nil payload
	// with a nil error is valid: some units exist only for their
	// lifecycle side effects. Initialization failures should be
	// reported as *InitError so hosts can tell them apart from
	// unexpected errors.
	Create(u *Record) (interface{}, error)

	// Destroy tears down the payload produced by Create. Called with
	// the instance handle the engine stored, which may be nil.
	Destroy(u *Record, payload interface{}) error
}
