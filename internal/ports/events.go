package ports

import "context"

// OperationalEvent is what the subsystem tells monitoring about an attempted
// operation. Audit-write failures are reported here precisely because the
// local database may be the failing component.
type OperationalEvent struct {
	Kind       string `json:"kind"`
	RecordType string `json:"recordType,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	TxID       string `json:"txId,omitempty"`
	Status     string `json:"status,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"`
}

// Event kinds published to operational monitoring.
const (
	EventRecordStored      = "record.stored"
	EventRecordStoreFailed = "record.store_failed"
	EventRecordVerified    = "record.verified"
	EventAuditWriteFailed  = "audit.write_failed"
)

// EventPublisher pushes operational events to monitoring. Implementations
// must not fail the primary operation; publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event OperationalEvent) error
}
