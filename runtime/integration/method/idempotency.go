package method

// Idempotency declares whether repeating a method's effect is safe.
//
// The classification is advisory: the dispatcher never loops, but enclosing
// retry wrappers must honor it.
type Idempotency string

const (
	// SafeRead methods have no side effects.
	SafeRead Idempotency = "safe_read"
	// IdempotentWrite methods may be re-issued without duplicating effects.
	IdempotentWrite Idempotency = "idempotent_write"
	// NonIdempotentWrite methods must never be retried automatically.
	NonIdempotentWrite Idempotency = "non_idempotent_write"
)

// Valid reports whether i is one of the declared classes.
func (i Idempotency) Valid() bool {
	switch i {
	case SafeRead, IdempotentWrite, NonIdempotentWrite:
		return true
	default:
		return false
	}
}

// Retryable reports whether an automated layer may re-issue a call.
func (i Idempotency) Retryable() bool {
	return i == SafeRead || i == IdempotentWrite
}
