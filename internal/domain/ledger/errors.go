package ledger

import "errors"

var (
	// ErrInvalidRecordType rejects record types outside the closed set.
	ErrInvalidRecordType = errors.New("invalid record type")
	// ErrInvalidPayload rejects hash payloads that are not valid structured data.
	ErrInvalidPayload = errors.New("invalid hash payload")
	// ErrNotFound means no current entry exists for the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrUnparseablePayload means an entry exists but its payload matches
	// neither known shape.
	ErrUnparseablePayload = errors.New("unable to parse hash payload")
	// ErrWriteConflict is the retryable rejection of a submit that lost an
	// ordering round against a concurrent write on the same key.
	ErrWriteConflict = errors.New("ledger write conflict")
	// ErrReconciliationInconsistency means the reconciliation store points to
	// a ledger key that no longer resolves. Surfaced, never retried.
	ErrReconciliationInconsistency = errors.New("reconciliation store inconsistent with ledger")
)
