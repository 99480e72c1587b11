package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"medledger/internal/domain/canonical"
	levelledger "medledger/internal/infrastructure/ledger/leveldb"
	"medledger/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "medledger/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "medledger/internal/infrastructure/persistence/sqlite/uow"
	"medledger/internal/usecase/integrity"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	platform, err := levelledger.Open(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open ledger platform: %v", err)
	}
	t.Cleanup(func() { _ = platform.Close() })

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.RecordMap{}, &model.LedgerAuditLog{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	svc := integrity.NewService(
		levelledger.NewClient(platform),
		sqliterepo.NewRecordMapRepository(db),
		sqliterepo.NewAuditRepository(db),
		sqliteuow.NewUnitOfWork(db),
		nil,
		canonical.DefaultProfile(),
		nil,
	)
	return NewServer(":0", svc).Router()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func storeViaAPI(t *testing.T, router http.Handler, recordID string, patientID int, fields map[string]any) map[string]any {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/records", map[string]any{
		"recordType": "PATIENT",
		"recordId":   recordID,
		"patientId":  patientID,
		"fields":     fields,
		"createdBy":  3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("store returned %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)
}

func TestStatusEndpoint(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected status body: %v", body)
	}
}

func TestStoreAndGetRecord(t *testing.T) {
	router := setupRouter(t)
	fields := map[string]any{"mrn": "MRN-1", "first_name": "Ada"}

	stored := storeViaAPI(t, router, "42", 7, fields)
	if stored["txId"] == "" || stored["recordHash"] == "" {
		t.Fatalf("incomplete store response: %v", stored)
	}
	if stored["ledgerKey"] != "PATIENT_42" {
		t.Fatalf("unexpected ledger key: %v", stored["ledgerKey"])
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/records/PATIENT/42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["recordId"] != "42" || body["recordType"] != "PATIENT" {
		t.Fatalf("unexpected record body: %v", body)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/records/VISIT/404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestStoreRejectsUnknownType(t *testing.T) {
	router := setupRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/records", map[string]any{
		"recordType": "DIAGNOSIS",
		"recordId":   "1",
		"fields":     map[string]any{"a": 1},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestVerifyEndpointOutcomes(t *testing.T) {
	router := setupRouter(t)
	fields := map[string]any{"mrn": "MRN-1", "first_name": "Ada"}
	stored := storeViaAPI(t, router, "42", 7, fields)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/verify", map[string]any{
		"recordType":   "PATIENT",
		"recordId":     "42",
		"expectedHash": stored["recordHash"],
		"createdBy":    3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify returned %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["result"] != "VALID" {
		t.Fatalf("want VALID, got %v", body["result"])
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/verify", map[string]any{
		"recordType":   "PATIENT",
		"recordId":     "42",
		"expectedHash": "deadbeef",
	})
	if body := decodeBody(t, rec); body["result"] != "TAMPERED" {
		t.Fatalf("want TAMPERED, got %v", body["result"])
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/verify", map[string]any{
		"recordType":   "PATIENT",
		"recordId":     "missing",
		"expectedHash": "deadbeef",
	})
	if body := decodeBody(t, rec); body["result"] != "NOT_FOUND" {
		t.Fatalf("want NOT_FOUND, got %v", body["result"])
	}
}

func TestVerifyRecordRecomputesHash(t *testing.T) {
	router := setupRouter(t)
	fields := map[string]any{"mrn": "MRN-1", "first_name": "Ada"}
	storeViaAPI(t, router, "42", 7, fields)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/verify/record", map[string]any{
		"recordType": "PATIENT",
		"recordId":   "42",
		"fields":     fields,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify returned %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["result"] != "VALID" {
		t.Fatalf("want VALID, got %v", body["result"])
	}

	tampered := map[string]any{"mrn": "MRN-1", "first_name": "Eva"}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/verify/record", map[string]any{
		"recordType": "PATIENT",
		"recordId":   "42",
		"fields":     tampered,
	})
	if body := decodeBody(t, rec); body["result"] != "TAMPERED" {
		t.Fatalf("want TAMPERED, got %v", body["result"])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router := setupRouter(t)
	storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-1"})
	storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-2"})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/records/PATIENT/42/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history returned %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["versions"] != float64(2) {
		t.Fatalf("want 2 versions, got %v", body["versions"])
	}
}

func TestPatientEndpoints(t *testing.T) {
	router := setupRouter(t)
	storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-1"})
	storeViaAPI(t, router, "43", 7, map[string]any{"mrn": "MRN-2"})
	storeViaAPI(t, router, "44", 8, map[string]any{"mrn": "MRN-3"})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/patients/7/records", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patient records returned %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"] != float64(2) {
		t.Fatalf("want 2 records, got %v", body["count"])
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients/7/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary returned %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["totalRecords"] != float64(2) {
		t.Fatalf("want 2 total records, got %v", body["totalRecords"])
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients/7/reconciliation", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconciliation returned %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"] != float64(2) {
		t.Fatalf("want 2 reconciliation rows, got %v", body["count"])
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/patients/not-a-number/records", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad patient id, got %d", rec.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	router := setupRouter(t)
	stored := storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-1"})

	doJSON(t, router, http.MethodPost, "/api/v1/verify", map[string]any{
		"recordType":   "PATIENT",
		"recordId":     "42",
		"expectedHash": stored["recordHash"],
	})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/audit?operation=VERIFY", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit returned %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(1) {
		t.Fatalf("want 1 VERIFY row, got %v", body["total"])
	}
}

func TestRebuildEndpoint(t *testing.T) {
	router := setupRouter(t)
	storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-1"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/admin/rebuild", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["scanned"] != float64(1) || body["failed"] != float64(0) {
		t.Fatalf("unexpected rebuild body: %v", body)
	}
}

func TestVerifyBatchEndpoint(t *testing.T) {
	router := setupRouter(t)
	stored := storeViaAPI(t, router, "42", 7, map[string]any{"mrn": "MRN-1"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/verify/batch", map[string]any{
		"items": []map[string]any{
			{"recordType": "PATIENT", "recordId": "42", "expectedHash": stored["recordHash"]},
			{"recordType": "PATIENT", "recordId": "42", "expectedHash": "deadbeef"},
			{"recordType": "VISIT", "recordId": "missing", "expectedHash": "x"},
		},
		"createdBy": 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["valid"] != float64(1) || body["tampered"] != float64(1) || body["notFound"] != float64(1) {
		t.Fatalf("unexpected batch body: %v", body)
	}
}
