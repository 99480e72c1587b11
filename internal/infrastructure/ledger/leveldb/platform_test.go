package levelledger

import (
	"context"
	"errors"
	"testing"

	"medledger/internal/domain/ledger"
	"medledger/internal/ports"
)

func setupClient(t *testing.T) *Client {
	t.Helper()

	platform, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open platform: %v", err)
	}
	t.Cleanup(func() {
		if err := platform.Close(); err != nil {
			t.Errorf("close platform: %v", err)
		}
	})
	return NewClient(platform)
}

func storeRecord(t *testing.T, client *Client, recordType ledger.RecordType, recordID string, patientID int, payload string) ports.StoreHashResult {
	t.Helper()

	result, err := client.StoreHash(context.Background(), ports.StoreHashInput{
		RecordID:    recordID,
		PatientID:   patientID,
		PayloadJSON: []byte(payload),
		RecordType:  recordType,
		CreatedBy:   1,
		Timestamp:   "2026-01-02T03:04:05Z",
	})
	if err != nil {
		t.Fatalf("store hash: %v", err)
	}
	return result
}

func TestStoreAndGetRoundtrip(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	result := storeRecord(t, client, ledger.RecordTypePatient, "42", 7, `{"kind":"SIMPLE","hash":"aa11"}`)
	if result.TxID == "" || result.CommitTime == "" {
		t.Fatalf("missing tx metadata: %+v", result)
	}
	if result.LedgerKey != "PATIENT_42" {
		t.Fatalf("unexpected ledger key %q", result.LedgerKey)
	}

	record, err := client.GetHash(ctx, ledger.RecordTypePatient, "42")
	if err != nil {
		t.Fatalf("get hash: %v", err)
	}
	if record.TxID != result.TxID {
		t.Fatalf("record tx %q does not match submit tx %q", record.TxID, result.TxID)
	}
	hash, err := record.HashPayload.ComparableHash()
	if err != nil {
		t.Fatalf("comparable hash: %v", err)
	}
	if hash != "aa11" {
		t.Fatalf("unexpected hash %q", hash)
	}
}

func TestGetHashNotFound(t *testing.T) {
	client := setupClient(t)
	_, err := client.GetHash(context.Background(), ledger.RecordTypePatient, "missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestHistoryKeepsCommitOrder(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	hashes := []string{"v1", "v2", "v3"}
	txIDs := make([]string, 0, len(hashes))
	for _, h := range hashes {
		result := storeRecord(t, client, ledger.RecordTypeVisit, "9", 1, `{"kind":"SIMPLE","hash":"`+h+`"}`)
		txIDs = append(txIDs, result.TxID)
	}

	history, err := client.GetHistory(ctx, ledger.RecordTypeVisit, "9")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != len(hashes) {
		t.Fatalf("want %d versions, got %d", len(hashes), len(history))
	}
	for i, entry := range history {
		if entry.TxID != txIDs[i] {
			t.Fatalf("version %d has tx %q, want %q", i, entry.TxID, txIDs[i])
		}
		hash, err := entry.Record.HashPayload.ComparableHash()
		if err != nil {
			t.Fatalf("comparable hash: %v", err)
		}
		if hash != hashes[i] {
			t.Fatalf("version %d has hash %q, want %q", i, hash, hashes[i])
		}
	}
}

func TestWriteConflictLosesToInterleavedCommit(t *testing.T) {
	platform, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open platform: %v", err)
	}
	t.Cleanup(func() { _ = platform.Close() })

	ctx := context.Background()
	key := "PATIENT_42"

	// The first transaction reads the key, then a second transaction commits
	// to the same key before the first one does. The first must fail
	// validation.
	_, err = platform.Submit(ctx, func(state ledger.State) error {
		if _, err := state.Get(key); err != nil {
			return err
		}

		if _, err := platform.Submit(ctx, func(inner ledger.State) error {
			return inner.Put(key, []byte(`{"winner":true}`))
		}); err != nil {
			return err
		}

		return state.Put(key, []byte(`{"winner":false}`))
	})
	if !errors.Is(err, ledger.ErrWriteConflict) {
		t.Fatalf("want ErrWriteConflict, got %v", err)
	}

	// The winning write must survive.
	err = platform.Evaluate(ctx, func(state ledger.State) error {
		value, err := state.Get(key)
		if err != nil {
			return err
		}
		if string(value) != `{"winner":true}` {
			t.Fatalf("unexpected surviving value %q", value)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
}

func TestEvaluateRejectsWrites(t *testing.T) {
	platform, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open platform: %v", err)
	}
	t.Cleanup(func() { _ = platform.Close() })

	err = platform.Evaluate(context.Background(), func(state ledger.State) error {
		return state.Put("k", []byte("v"))
	})
	if err == nil {
		t.Fatalf("want error for write in read-only invocation")
	}
}

func TestSubmitCommitsOpaqueValues(t *testing.T) {
	platform, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open platform: %v", err)
	}
	t.Cleanup(func() { _ = platform.Close() })

	ctx := context.Background()

	// The contract stages values the platform must treat as opaque bytes:
	// index entries hold a bare direct key, not a JSON document.
	indexKey := ledger.CompositeKey("RECORD", "PATIENT", "42", "2026-01-02T03:04:05Z")
	_, err = platform.Submit(ctx, func(state ledger.State) error {
		return state.Put(indexKey, []byte("PATIENT_42"))
	})
	if err != nil {
		t.Fatalf("submit opaque value: %v", err)
	}

	err = platform.Evaluate(ctx, func(state ledger.State) error {
		value, err := state.Get(indexKey)
		if err != nil {
			return err
		}
		if string(value) != "PATIENT_42" {
			t.Fatalf("unexpected state value %q", value)
		}

		versions, err := state.History(indexKey)
		if err != nil {
			return err
		}
		if len(versions) != 1 || string(versions[0].Value) != "PATIENT_42" {
			t.Fatalf("unexpected history %+v", versions)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
}

func TestQueryByPatientSkipsIndexEntries(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	storeRecord(t, client, ledger.RecordTypePatient, "1", 7, `{"kind":"SIMPLE","hash":"a"}`)
	storeRecord(t, client, ledger.RecordTypeVisit, "2", 7, `{"kind":"SIMPLE","hash":"b"}`)
	storeRecord(t, client, ledger.RecordTypeVisit, "3", 8, `{"kind":"SIMPLE","hash":"c"}`)

	records, err := client.GetByPatient(ctx, 7)
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

func TestGetByTypeAcrossVersions(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	storeRecord(t, client, ledger.RecordTypeBilling, "inv-1", 7, `{"kind":"SIMPLE","hash":"v1"}`)
	storeRecord(t, client, ledger.RecordTypeBilling, "inv-1", 7, `{"kind":"SIMPLE","hash":"v2"}`)
	storeRecord(t, client, ledger.RecordTypeBilling, "inv-2", 8, `{"kind":"SIMPLE","hash":"x"}`)
	storeRecord(t, client, ledger.RecordTypePatient, "42", 7, `{"kind":"SIMPLE","hash":"y"}`)

	records, err := client.GetByType(ctx, ledger.RecordTypeBilling)
	if err != nil {
		t.Fatalf("get by type: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 billing records, got %d", len(records))
	}
	for _, record := range records {
		if record.RecordType != ledger.RecordTypeBilling {
			t.Fatalf("wrong type in result: %+v", record)
		}
		if record.RecordID == "inv-1" {
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

func TestVerifyHashThroughClient(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	storeRecord(t, client, ledger.RecordTypeReport, "12", 5, `{"kind":"COMPLEX","formHash":"ff00","fileHash":"ab"}`)

	match, err := client.VerifyHash(ctx, ledger.RecordTypeReport, "12", "ff00")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !match {
		t.Fatalf("stored formHash must verify")
	}

	match, err = client.VerifyHash(ctx, ledger.RecordTypeReport, "12", "tampered")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if match {
		t.Fatalf("wrong hash must not verify")
	}
}
