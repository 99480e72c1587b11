package ledger

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
)

// fakeState is an in-memory State for exercising the contract without a
// ledger platform.
type fakeState struct {
	txID    string
	kv      map[string][]byte
	history map[string][]KeyVersion
}

func newFakeState(txID string) *fakeState {
	return &fakeState{
		txID:    txID,
		kv:      make(map[string][]byte),
		history: make(map[string][]KeyVersion),
	}
}

func (s *fakeState) TxID() string { return s.txID }

func (s *fakeState) Get(key string) ([]byte, error) {
	return s.kv[key], nil
}

func (s *fakeState) Put(key string, value []byte) error {
	s.kv[key] = append([]byte(nil), value...)
	s.history[key] = append(s.history[key], KeyVersion{
		TxID:       s.txID,
		CommitTime: "2026-01-02T03:04:05Z",
		Value:      append([]byte(nil), value...),
	})
	return nil
}

func (s *fakeState) History(key string) ([]KeyVersion, error) {
	return s.history[key], nil
}

func (s *fakeState) Scan(prefix string) ([]KeyValue, error) {
	keys := make([]string, 0, len(s.kv))
	for key := range s.kv {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]KeyValue, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, KeyValue{Key: key, Value: s.kv[key]})
	}
	return entries, nil
}

func (s *fakeState) Query(selector map[string]any) ([][]byte, error) {
	var results [][]byte
	for key, value := range s.kv {
		if strings.HasPrefix(key, "\x00") {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(value, &doc); err != nil {
			continue
		}
		match := true
		for field, want := range selector {
			got, ok := doc[field]
			if !ok {
				match = false
				break
			}
			if wantInt, isInt := want.(int); isInt {
				f, isFloat := got.(float64)
				if !isFloat || f != float64(wantInt) {
					match = false
					break
				}
				continue
			}
			if got != want {
				match = false
				break
			}
		}
		if match {
			results = append(results, value)
		}
	}
	return results, nil
}

func mustStore(t *testing.T, state *fakeState, in StoreInput) *RecordHash {
	t.Helper()
	record, err := Contract{}.StoreHash(state, in)
	if err != nil {
		t.Fatalf("store hash: %v", err)
	}
	return record
}

func TestStoreHashWritesPrimaryAndIndex(t *testing.T) {
	state := newFakeState("tx-1")
	record := mustStore(t, state, StoreInput{
		RecordID:    "42",
		PatientID:   7,
		PayloadJSON: []byte(`{"kind":"SIMPLE","hash":"aa11"}`),
		RecordType:  "PATIENT",
		CreatedBy:   3,
		Timestamp:   "2026-01-02T03:04:05Z",
	})

	if record.TxID != "tx-1" {
		t.Fatalf("want platform tx id on record, got %q", record.TxID)
	}

	directKey := DirectKey(RecordTypePatient, "42")
	primary, ok := state.kv[directKey]
	if !ok {
		t.Fatalf("primary state entry missing under %q", directKey)
	}

	var stored RecordHash
	if err := json.Unmarshal(primary, &stored); err != nil {
		t.Fatalf("unmarshal stored record: %v", err)
	}
	if stored.RecordID != "42" || stored.PatientID != 7 || stored.RecordType != RecordTypePatient {
		t.Fatalf("unexpected stored record: %+v", stored)
	}

	indexKey := CompositeKey("RECORD", "PATIENT", "42", "2026-01-02T03:04:05Z")
	indexValue, ok := state.kv[indexKey]
	if !ok {
		t.Fatalf("index entry missing under %q", indexKey)
	}
	if string(indexValue) != directKey {
		t.Fatalf("index must point at the direct key, got %q", indexValue)
	}
}

func TestStoreHashRejectsInvalidInput(t *testing.T) {
	state := newFakeState("tx-1")

	if _, err := (Contract{}).StoreHash(state, StoreInput{
		RecordID:    "42",
		PayloadJSON: []byte(`{"hash":"aa"}`),
		RecordType:  "DIAGNOSIS",
	}); !errors.Is(err, ErrInvalidRecordType) {
		t.Fatalf("want ErrInvalidRecordType, got %v", err)
	}

	if _, err := (Contract{}).StoreHash(state, StoreInput{
		RecordID:    "",
		PayloadJSON: []byte(`{"hash":"aa"}`),
		RecordType:  "PATIENT",
	}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload for empty id, got %v", err)
	}

	if _, err := (Contract{}).StoreHash(state, StoreInput{
		RecordID:    "42",
		PayloadJSON: []byte(`{"nope":true}`),
		RecordType:  "PATIENT",
	}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("want ErrInvalidPayload for bad payload, got %v", err)
	}

	if len(state.kv) != 0 {
		t.Fatalf("rejected stores must not write state, got %d entries", len(state.kv))
	}
}

func TestGetHashNotFound(t *testing.T) {
	state := newFakeState("tx-1")
	_, err := Contract{}.GetHash(state, "404", RecordTypeVisit)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetHistorySkipsUnparseableVersions(t *testing.T) {
	state := newFakeState("tx-1")
	mustStore(t, state, StoreInput{
		RecordID:    "9",
		PatientID:   1,
		PayloadJSON: []byte(`{"hash":"v1"}`),
		RecordType:  "VISIT",
		Timestamp:   "t1",
	})

	key := DirectKey(RecordTypeVisit, "9")
	state.history[key] = append(state.history[key], KeyVersion{
		TxID:       "tx-broken",
		CommitTime: "t2",
		Value:      []byte("{not json"),
	})

	state.txID = "tx-2"
	mustStore(t, state, StoreInput{
		RecordID:    "9",
		PatientID:   1,
		PayloadJSON: []byte(`{"hash":"v2"}`),
		RecordType:  "VISIT",
		Timestamp:   "t3",
	})

	entries, err := Contract{}.GetHistory(state, "9", RecordTypeVisit)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 parseable versions, got %d", len(entries))
	}
	if entries[0].TxID != "tx-1" || entries[1].TxID != "tx-2" {
		t.Fatalf("history out of order: %q then %q", entries[0].TxID, entries[1].TxID)
	}
}

func TestGetByTypeDeduplicatesIndexEntries(t *testing.T) {
	state := newFakeState("tx-1")
	mustStore(t, state, StoreInput{
		RecordID:    "9",
		PatientID:   1,
		PayloadJSON: []byte(`{"hash":"v1"}`),
		RecordType:  "VISIT",
		Timestamp:   "t1",
	})
	// Second write of the same record lands a second index entry under a new
	// timestamp.
	state.txID = "tx-2"
	mustStore(t, state, StoreInput{
		RecordID:    "9",
		PatientID:   1,
		PayloadJSON: []byte(`{"hash":"v2"}`),
		RecordType:  "VISIT",
		Timestamp:   "t2",
	})
	state.txID = "tx-3"
	mustStore(t, state, StoreInput{
		RecordID:    "10",
		PatientID:   2,
		PayloadJSON: []byte(`{"hash":"v3"}`),
		RecordType:  "VISIT",
		Timestamp:   "t3",
	})

	records, err := Contract{}.GetByType(state, RecordTypeVisit)
	if err != nil {
		t.Fatalf("get by type: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 distinct records, got %d", len(records))
	}
	for _, record := range records {
		if record.RecordID == "9" {
			hash, err := record.HashPayload.ComparableHash()
			if err != nil {
				t.Fatalf("comparable hash: %v", err)
			}
			if hash != "v2" {
				t.Fatalf("want current version v2, got %q", hash)
			}
		}
	}
}

func TestGetByPatient(t *testing.T) {
	state := newFakeState("tx-1")
	mustStore(t, state, StoreInput{
		RecordID:    "1",
		PatientID:   7,
		PayloadJSON: []byte(`{"hash":"a"}`),
		RecordType:  "PATIENT",
		Timestamp:   "t1",
	})
	mustStore(t, state, StoreInput{
		RecordID:    "2",
		PatientID:   7,
		PayloadJSON: []byte(`{"hash":"b"}`),
		RecordType:  "VISIT",
		Timestamp:   "t2",
	})
	mustStore(t, state, StoreInput{
		RecordID:    "3",
		PatientID:   8,
		PayloadJSON: []byte(`{"hash":"c"}`),
		RecordType:  "VISIT",
		Timestamp:   "t3",
	})

	records, err := Contract{}.GetByPatient(state, 7)
	if err != nil {
		t.Fatalf("get by patient: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records for patient 7, got %d", len(records))
	}
	for _, record := range records {
		if record.PatientID != 7 {
			t.Fatalf("record for wrong patient: %+v", record)
		}
	}
}

func TestVerifyHashAgainstLegacyPayload(t *testing.T) {
	state := newFakeState("tx-1")

	// Entries written before the payload discriminant existed carry both
	// fields untagged; verification must compare against "hash".
	legacy := RecordHash{
		RecordID:   "77",
		PatientID:  5,
		RecordType: RecordTypeReport,
		Timestamp:  "t1",
		TxID:       "tx-0",
	}
	if err := json.Unmarshal([]byte(`{"hash":"aa11","formHash":"bb22"}`), &legacy.HashPayload); err != nil {
		t.Fatalf("build legacy payload: %v", err)
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy record: %v", err)
	}
	state.kv[DirectKey(RecordTypeReport, "77")] = raw

	match, err := Contract{}.VerifyHash(state, "77", RecordTypeReport, "aa11")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !match {
		t.Fatalf("hash field must match")
	}

	match, err = Contract{}.VerifyHash(state, "77", RecordTypeReport, "bb22")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if match {
		t.Fatalf("formHash must not win when hash is present")
	}
}

func TestVerifyHashTaggedPayload(t *testing.T) {
	state := newFakeState("tx-1")
	mustStore(t, state, StoreInput{
		RecordID:    "12",
		PatientID:   1,
		PayloadJSON: []byte(`{"kind":"COMPLEX","formHash":"ff00","fileHash":"ab"}`),
		RecordType:  "REPORT",
		Timestamp:   "t1",
	})

	match, err := Contract{}.VerifyHash(state, "12", RecordTypeReport, "ff00")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !match {
		t.Fatalf("complex payload must compare against formHash")
	}
}
