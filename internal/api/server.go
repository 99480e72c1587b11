package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"medledger/internal/bootstrap/logging"
	"medledger/internal/errs"
	"medledger/internal/usecase/integrity"
)

// Server exposes the integrity service over HTTP.
type Server struct {
	addr string
	svc  *integrity.Service
}

func NewServer(addr string, svc *integrity.Service) *Server {
	return &Server{addr: addr, svc: svc}
}

// Router builds the HTTP routing table. Exposed separately from Run so tests
// can drive handlers without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", s.handleStatus)

		api.Post("/records", s.handleStoreRecord)
		api.Post("/reports", s.handleStoreReport)
		api.Get("/records/{recordType}/{recordID}", s.handleGetRecord)
		api.Get("/records/{recordType}/{recordID}/history", s.handleHistory)
		api.Get("/records/{recordType}", s.handleRecordsByType)

		api.Get("/patients/{patientID}/records", s.handleRecordsByPatient)
		api.Get("/patients/{patientID}/summary", s.handlePatientSummary)
		api.Get("/patients/{patientID}/reconciliation", s.handleReconciliationByPatient)

		api.Post("/verify", s.handleVerify)
		api.Post("/verify/record", s.handleVerifyRecord)
		api.Post("/verify/report", s.handleVerifyReport)
		api.Post("/verify/batch", s.handleVerifyBatch)

		api.Get("/audit", s.handleAudit)
		api.Post("/admin/rebuild", s.handleRebuild)
	})

	return r
}

// Run serves until the context is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "http server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(err, "serve http")
	}
}
