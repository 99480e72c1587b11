package ledger

import (
	"fmt"
	"strings"
)

// RecordType is the closed set of business record categories that may be
// fingerprinted on the ledger.
type RecordType string

const (
	RecordTypePatient      RecordType = "PATIENT"
	RecordTypeVisit        RecordType = "VISIT"
	RecordTypePrescription RecordType = "PRESCRIPTION"
	RecordTypeReport       RecordType = "REPORT"
	RecordTypeBilling      RecordType = "BILLING"
	RecordTypeAppointment  RecordType = "APPOINTMENT"
)

var recordTypes = map[RecordType]struct{}{
	RecordTypePatient:      {},
	RecordTypeVisit:        {},
	RecordTypePrescription: {},
	RecordTypeReport:       {},
	RecordTypeBilling:      {},
	RecordTypeAppointment:  {},
}

// ParseRecordType validates a caller-supplied type name against the closed set.
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := recordTypes[rt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecordType, s)
	}
	return rt, nil
}

// RecordTypes returns the closed set in a stable order, for type-by-type
// ledger scans.
func RecordTypes() []RecordType {
	return []RecordType{
		RecordTypePatient,
		RecordTypeVisit,
		RecordTypePrescription,
		RecordTypeReport,
		RecordTypeBilling,
		RecordTypeAppointment,
	}
}

func (t RecordType) Valid() bool {
	_, ok := recordTypes[t]
	return ok
}

func (t RecordType) String() string { return string(t) }

// RecordHash is one logical ledger entry per business record. The ledger
// keeps the full version history of each entry; this struct is the snapshot
// stored at each version.
type RecordHash struct {
	RecordID    string      `json:"recordId"`
	PatientID   int         `json:"patientId"`
	HashPayload HashPayload `json:"hashPayload"`
	RecordType  RecordType  `json:"recordType"`
	CreatedBy   int         `json:"createdBy"`
	// Timestamp is the caller-supplied business time of the write, distinct
	// from the ledger commit time carried on history entries.
	Timestamp string `json:"timestamp"`
	TxID      string `json:"txId"`
}

// HistoryEntry is one version of a record as returned by the ledger's native
// per-key history. Order is the ledger's commit order, oldest first.
type HistoryEntry struct {
	TxID       string      `json:"txId"`
	CommitTime string      `json:"timestamp"`
	Record     *RecordHash `json:"record"`
}

// DirectKey is the primary ledger key for a record: O(1) current-value lookup
// and native history both go through it.
func DirectKey(recordType RecordType, recordID string) string {
	return fmt.Sprintf("%s_%s", recordType, recordID)
}

const compositeSep = "\x00"

// CompositeKey builds a namespaced range-scannable key from an object type
// and ordered attributes.
func CompositeKey(objectType string, attrs ...string) string {
	var b strings.Builder
	b.WriteString(compositeSep)
	b.WriteString(objectType)
	b.WriteString(compositeSep)
	for _, attr := range attrs {
		b.WriteString(attr)
		b.WriteString(compositeSep)
	}
	return b.String()
}

// recordIndexObjectType namespaces the secondary index entries that support
// type-scoped range queries.
const recordIndexObjectType = "RECORD"
