package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/domain/ledger"
	"medledger/internal/ports"
	"medledger/internal/usecase/integrity"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "medledger"})
}

type storeRecordRequest struct {
	RecordType  string           `json:"recordType"`
	RecordID    string           `json:"recordId"`
	PatientID   int              `json:"patientId"`
	Fields      map[string]any   `json:"fields"`
	Medications []map[string]any `json:"medications,omitempty"`
	Items       []map[string]any `json:"items,omitempty"`
	CreatedBy   int              `json:"createdBy"`
	Timestamp   string           `json:"timestamp,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

type storeResponse struct {
	RecordType string `json:"recordType"`
	RecordID   string `json:"recordId"`
	LedgerKey  string `json:"ledgerKey"`
	TxID       string `json:"txId"`
	RecordHash string `json:"recordHash"`
	FileHash   string `json:"fileHash,omitempty"`
	IPFSHash   string `json:"ipfsHash,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) handleStoreRecord(w http.ResponseWriter, r *http.Request) {
	var req storeRecordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recordType, err := ledger.ParseRecordType(req.RecordType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, errors.New("recordId is required"))
		return
	}

	result, err := s.svc.StoreRecord(r.Context(), integrity.StoreRecordInput{
		RecordType:  recordType,
		RecordID:    req.RecordID,
		PatientID:   req.PatientID,
		Fields:      req.Fields,
		Medications: req.Medications,
		Items:       req.Items,
		CreatedBy:   req.CreatedBy,
		Timestamp:   req.Timestamp,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreResponse(result))
}

type storeReportRequest struct {
	RecordID     string         `json:"recordId"`
	PatientID    int            `json:"patientId"`
	Fields       map[string]any `json:"fields"`
	FileHash     string         `json:"fileHash,omitempty"`
	IPFSHash     string         `json:"ipfsHash,omitempty"`
	EncryptionIV string         `json:"encryptionIv,omitempty"`
	CreatedBy    int            `json:"createdBy"`
	Timestamp    string         `json:"timestamp,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleStoreReport(w http.ResponseWriter, r *http.Request) {
	var req storeReportRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, errors.New("recordId is required"))
		return
	}

	result, err := s.svc.StoreReport(r.Context(), integrity.StoreReportInput{
		RecordID:     req.RecordID,
		PatientID:    req.PatientID,
		Fields:       req.Fields,
		FileHash:     req.FileHash,
		IPFSHash:     req.IPFSHash,
		EncryptionIV: req.EncryptionIV,
		CreatedBy:    req.CreatedBy,
		Timestamp:    req.Timestamp,
		Metadata:     req.Metadata,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoreResponse(result))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordType, recordID, ok := recordParams(w, r)
	if !ok {
		return
	}

	record, err := s.svc.RecordHash(r.Context(), recordType, recordID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recordType, recordID, ok := recordParams(w, r)
	if !ok {
		return
	}

	history, err := s.svc.RecordHistory(r.Context(), recordType, recordID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recordType": recordType,
		"recordId":   recordID,
		"versions":   len(history),
		"history":    history,
	})
}

func (s *Server) handleRecordsByType(w http.ResponseWriter, r *http.Request) {
	recordType, err := ledger.ParseRecordType(chi.URLParam(r, "recordType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := s.svc.RecordsByType(r.Context(), recordType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recordType": recordType,
		"count":      len(records),
		"records":    records,
	})
}

func (s *Server) handleRecordsByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.Atoi(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("patientID must be an integer"))
		return
	}

	records, err := s.svc.RecordsByPatient(r.Context(), patientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patientId": patientID,
		"count":     len(records),
		"records":   records,
	})
}

func (s *Server) handlePatientSummary(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.Atoi(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("patientID must be an integer"))
		return
	}

	summary, err := s.svc.SummarizePatient(r.Context(), patientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patientId":    summary.PatientID,
		"totalRecords": summary.TotalRecords,
		"countsByType": summary.CountsByType,
		"records":      summary.Records,
	})
}

type reconciliationRow struct {
	RecordType   string `json:"recordType"`
	RecordID     string `json:"recordId"`
	PatientID    int    `json:"patientId"`
	LedgerKey    string `json:"ledgerKey"`
	TxID         string `json:"txId"`
	RecordHash   string `json:"recordHash"`
	FileHash     string `json:"fileHash,omitempty"`
	IPFSHash     string `json:"ipfsHash,omitempty"`
	EncryptionIV string `json:"encryptionIv,omitempty"`
	CreatedBy    int    `json:"createdBy"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

func (s *Server) handleReconciliationByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.Atoi(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("patientID must be an integer"))
		return
	}

	rows, err := s.svc.ReconciliationByPatient(r.Context(), patientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]reconciliationRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, reconciliationRow{
			RecordType:   row.RecordType,
			RecordID:     row.RecordID,
			PatientID:    row.PatientID,
			LedgerKey:    row.LedgerKey,
			TxID:         row.TxID,
			RecordHash:   row.RecordHash,
			FileHash:     row.FileHash,
			IPFSHash:     row.IPFSHash,
			EncryptionIV: row.EncryptionIV,
			CreatedBy:    row.CreatedBy,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patientId": patientID,
		"count":     len(out),
		"rows":      out,
	})
}

type verifyRequest struct {
	RecordType   string `json:"recordType"`
	RecordID     string `json:"recordId"`
	ExpectedHash string `json:"expectedHash"`
	CreatedBy    int    `json:"createdBy"`
}

type verifyResponse struct {
	Result          string `json:"result"`
	RecordType      string `json:"recordType"`
	RecordID        string `json:"recordId"`
	ProvidedHash    string `json:"providedHash,omitempty"`
	StoredHash      string `json:"storedHash,omitempty"`
	TxID            string `json:"txId,omitempty"`
	LedgerTimestamp string `json:"ledgerTimestamp,omitempty"`
	FileResult      string `json:"fileResult,omitempty"`
}

func toVerifyResponse(outcome integrity.VerifyOutcome) verifyResponse {
	return verifyResponse{
		Result:          string(outcome.Result),
		RecordType:      outcome.RecordType.String(),
		RecordID:        outcome.RecordID,
		ProvidedHash:    outcome.ProvidedHash,
		StoredHash:      outcome.StoredHash,
		TxID:            outcome.TxID,
		LedgerTimestamp: outcome.LedgerTimestamp,
		FileResult:      string(outcome.FileResult),
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recordType, err := ledger.ParseRecordType(req.RecordType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := s.svc.Verify(r.Context(), recordType, req.RecordID, req.ExpectedHash, req.CreatedBy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyResponse(outcome))
}

type verifyRecordRequest struct {
	RecordType  string           `json:"recordType"`
	RecordID    string           `json:"recordId"`
	Fields      map[string]any   `json:"fields"`
	Medications []map[string]any `json:"medications,omitempty"`
	Items       []map[string]any `json:"items,omitempty"`
	CreatedBy   int              `json:"createdBy"`
}

func (s *Server) handleVerifyRecord(w http.ResponseWriter, r *http.Request) {
	var req verifyRecordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	recordType, err := ledger.ParseRecordType(req.RecordType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := s.svc.VerifyRecord(r.Context(), integrity.VerifyRecordInput{
		RecordType:  recordType,
		RecordID:    req.RecordID,
		Fields:      req.Fields,
		Medications: req.Medications,
		Items:       req.Items,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyResponse(outcome))
}

type verifyReportRequest struct {
	RecordID string         `json:"recordId"`
	Fields   map[string]any `json:"fields"`
	// FileData carries the original plaintext file bytes, base64-encoded.
	FileData  string `json:"fileData,omitempty"`
	CreatedBy int    `json:"createdBy"`
}

func (s *Server) handleVerifyReport(w http.ResponseWriter, r *http.Request) {
	var req verifyReportRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var fileData []byte
	if req.FileData != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("fileData must be base64"))
			return
		}
		fileData = decoded
	}

	outcome, err := s.svc.VerifyReport(r.Context(), integrity.VerifyReportInput{
		RecordID:  req.RecordID,
		Fields:    req.Fields,
		FileData:  fileData,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyResponse(outcome))
}

type verifyBatchRequest struct {
	Items     []verifyRequest `json:"items"`
	CreatedBy int             `json:"createdBy"`
}

func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req verifyBatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]integrity.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		recordType, err := ledger.ParseRecordType(item.RecordType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		items = append(items, integrity.BatchItem{
			RecordType:   recordType,
			RecordID:     item.RecordID,
			ExpectedHash: item.ExpectedHash,
		})
	}

	summary, err := s.svc.VerifyBatch(r.Context(), items, req.CreatedBy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	outcomes := make([]verifyResponse, 0, len(summary.Outcomes))
	for _, outcome := range summary.Outcomes {
		outcomes = append(outcomes, toVerifyResponse(outcome))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    summary.Total,
		"valid":    summary.Valid,
		"tampered": summary.Tampered,
		"notFound": summary.NotFound,
		"errors":   summary.Errors,
		"outcomes": outcomes,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ports.AuditFilter{
		OperationType: q.Get("operation"),
		RecordType:    q.Get("recordType"),
		RecordID:      q.Get("recordId"),
		Status:        q.Get("status"),
		From:          q.Get("from"),
		To:            q.Get("to"),
	}
	if v := q.Get("createdBy"); v != "" {
		createdBy, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("createdBy must be an integer"))
			return
		}
		filter.CreatedBy = createdBy
	}
	if v := q.Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("perPage"); v != "" {
		filter.PerPage, _ = strconv.Atoi(v)
	}

	entries, total, err := s.svc.AuditTrail(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": entries,
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RebuildReconciliation(r.Context())
	if err != nil && !errors.Is(err, ledger.ErrReconciliationInconsistency) {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{
		"scanned":  report.Scanned,
		"upserted": report.Upserted,
		"failed":   report.Failed,
		"byType":   report.ByType,
	})
}

func recordParams(w http.ResponseWriter, r *http.Request) (ledger.RecordType, string, bool) {
	recordType, err := ledger.ParseRecordType(chi.URLParam(r, "recordType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", "", false
	}
	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		writeError(w, http.StatusBadRequest, errors.New("recordID is required"))
		return "", "", false
	}
	return recordType, recordID, true
}

func toStoreResponse(result integrity.StoreResult) storeResponse {
	return storeResponse{
		RecordType: result.RecordType.String(),
		RecordID:   result.RecordID,
		LedgerKey:  result.LedgerKey,
		TxID:       result.TxID,
		RecordHash: result.RecordHash,
		FileHash:   result.FileHash,
		IPFSHash:   result.IPFSHash,
		Timestamp:  result.Timestamp,
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var gap *integrity.ReconciliationGapError
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ports.ErrRecordMapNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrInvalidRecordType), errors.Is(err, ledger.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrWriteConflict):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &gap):
		logging.Error(r.Context(), "reconciliation gap surfaced to client",
			slog.String("tx_id", gap.TxID),
			slog.Any("err", err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "ledger write committed but local reconciliation failed",
			"txId":  gap.TxID,
		})
	default:
		logging.Error(r.Context(), "request failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
	}
}
