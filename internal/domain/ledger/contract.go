package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// KeyVersion is one committed version of a ledger key.
type KeyVersion struct {
	TxID       string
	CommitTime string
	Value      []byte
}

// KeyValue is one current-state entry from a range scan.
type KeyValue struct {
	Key   string
	Value []byte
}

// State is the per-transaction view a hosting platform hands to the contract.
// Writes issued through it commit atomically with the transaction or not at
// all; the platform orders transactions and assigns the transaction id.
type State interface {
	// TxID returns the platform-assigned id of the executing transaction.
	TxID() string
	// Get returns the current value of a key, or nil when absent.
	Get(key string) ([]byte, error)
	// Put stages a write. All staged writes commit atomically.
	Put(key string, value []byte) error
	// History returns every committed version of a key, oldest first.
	History(key string) ([]KeyVersion, error)
	// Scan returns current-state entries whose key has the given prefix.
	Scan(prefix string) ([]KeyValue, error)
	// Query returns current primary-state values whose decoded form matches
	// the selector's top-level fields. Requires a state database with rich
	// query support; not every ledger backend provides one.
	Query(selector map[string]any) ([][]byte, error)
}

// Contract is the append/query logic executed by the ledger platform. It owns
// no state of its own; everything lives behind the State handed to each call.
type Contract struct{}

// StoreInput carries the caller-supplied fields of a StoreHash invocation.
type StoreInput struct {
	RecordID    string
	PatientID   int
	PayloadJSON []byte
	RecordType  string
	CreatedBy   int
	Timestamp   string
}

// StoreHash validates and appends a new version of a record fingerprint.
//
// The entry is written under its direct key (current-value lookup, native
// history) and a composite index entry pointing back at the direct key is
// written in the same transaction, so the type-scoped index can never drift
// from the primary store.
func (Contract) StoreHash(state State, in StoreInput) (*RecordHash, error) {
	recordType, err := ParseRecordType(in.RecordType)
	if err != nil {
		return nil, err
	}
	if in.RecordID == "" {
		return nil, fmt.Errorf("%w: record id is required", ErrInvalidPayload)
	}

	payload, err := ParsePayload(in.PayloadJSON)
	if err != nil {
		return nil, err
	}

	record := RecordHash{
		RecordID:    in.RecordID,
		PatientID:   in.PatientID,
		HashPayload: payload,
		RecordType:  recordType,
		CreatedBy:   in.CreatedBy,
		Timestamp:   in.Timestamp,
		TxID:        state.TxID(),
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	directKey := DirectKey(recordType, in.RecordID)
	if err := state.Put(directKey, recordJSON); err != nil {
		return nil, fmt.Errorf("put record state: %w", err)
	}

	indexKey := CompositeKey(recordIndexObjectType, recordType.String(), in.RecordID, in.Timestamp)
	if err := state.Put(indexKey, []byte(directKey)); err != nil {
		return nil, fmt.Errorf("put record index: %w", err)
	}

	return &record, nil
}

// GetHash returns the current version of a record fingerprint.
func (Contract) GetHash(state State, recordID string, recordType RecordType) (*RecordHash, error) {
	key := DirectKey(recordType, recordID)
	value, err := state.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read state %q: %w", key, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	var record RecordHash
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("unmarshal record %q: %w", key, err)
	}
	return &record, nil
}

// GetHistory returns every committed version of a record, oldest first, in
// the ledger's native history order. Versions that no longer parse are
// skipped rather than aborting the query; historical schema drift must not
// make the audit trail unreadable.
func (Contract) GetHistory(state State, recordID string, recordType RecordType) ([]HistoryEntry, error) {
	key := DirectKey(recordType, recordID)
	versions, err := state.History(key)
	if err != nil {
		return nil, fmt.Errorf("read history %q: %w", key, err)
	}

	entries := make([]HistoryEntry, 0, len(versions))
	for _, v := range versions {
		var record RecordHash
		if err := json.Unmarshal(v.Value, &record); err != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			TxID:       v.TxID,
			CommitTime: v.CommitTime,
			Record:     &record,
		})
	}
	return entries, nil
}

// GetByPatient returns the current fingerprints of every record belonging to
// a patient, across all record types.
func (Contract) GetByPatient(state State, patientID int) ([]RecordHash, error) {
	values, err := state.Query(map[string]any{"patientId": patientID})
	if err != nil {
		return nil, fmt.Errorf("query by patient %s: %w", strconv.Itoa(patientID), err)
	}

	records := make([]RecordHash, 0, len(values))
	for _, value := range values {
		var record RecordHash
		if err := json.Unmarshal(value, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// GetByType range-scans the composite index for one record type and resolves
// each index entry to its current primary value.
func (Contract) GetByType(state State, recordType RecordType) ([]RecordHash, error) {
	prefix := CompositeKey(recordIndexObjectType, recordType.String())
	entries, err := state.Scan(prefix)
	if err != nil {
		return nil, fmt.Errorf("scan type %s: %w", recordType, err)
	}

	records := make([]RecordHash, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		directKey := string(entry.Value)
		if _, ok := seen[directKey]; ok {
			continue
		}
		seen[directKey] = struct{}{}

		value, err := state.Get(directKey)
		if err != nil {
			return nil, fmt.Errorf("resolve index entry %q: %w", directKey, err)
		}
		if value == nil {
			continue
		}
		var record RecordHash
		if err := json.Unmarshal(value, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// VerifyHash compares a provided hash against the stored fingerprint of the
// current version. Legacy payloads are probed simple-shape first, so a
// payload carrying both "hash" and "formHash" compares against "hash".
func (c Contract) VerifyHash(state State, recordID string, recordType RecordType, providedHash string) (bool, error) {
	record, err := c.GetHash(state, recordID, recordType)
	if err != nil {
		return false, err
	}

	stored, err := record.HashPayload.ComparableHash()
	if err != nil {
		return false, err
	}
	return stored == providedHash, nil
}
