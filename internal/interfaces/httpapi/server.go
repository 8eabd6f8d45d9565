package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"transferindex/internal/application"
	"transferindex/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

type TransferStore interface {
	application.TransferReader
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	store     TransferStore
	queries   *application.TransferQueries
	metrics   *Metrics
	buildInfo BuildInfo
}

func NewServer(store TransferStore, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if store == nil {
		return nil, errors.New("http server store must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		store:     store,
		queries:   application.NewTransferQueries(store),
		metrics:   metrics,
		buildInfo: buildInfo,
	}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.metrics.instrument("healthz", s.handleHealth))
	mux.HandleFunc("GET /readyz", s.metrics.instrument("readyz", s.handleReady))
	mux.HandleFunc("GET /transfers", s.metrics.instrument("transfers", s.handleTransfers))
	mux.HandleFunc("GET /addresses/{address}/transfers", s.metrics.instrument("address_transfers", s.handleAddressTransfers))
	mux.HandleFunc("GET /blocks/max", s.metrics.instrument("max_block", s.handleMaxBlock))
	mux.HandleFunc("GET /version", s.metrics.instrument("version", s.handleVersion))
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http api listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransferFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeTransfers(w, r, filter)
}

func (s *Server) handleAddressTransfers(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		respondError(w, http.StatusBadRequest, "invalid address")
		return
	}
	s.writeTransfers(w, r, application.TransferQueryFilter{Address: address})
}

func (s *Server) writeTransfers(w http.ResponseWriter, r *http.Request, filter application.TransferQueryFilter) {
	transfers, err := s.queries.Transfers(r.Context(), filter)
	if err != nil {
		slog.Error("transfer query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if transfers == nil {
		transfers = []domain.Transfer{}
	}
	respondJSON(w, http.StatusOK, transfers)
}

func (s *Server) handleMaxBlock(w http.ResponseWriter, r *http.Request) {
	block, ok, err := s.queries.MaxBlock(r.Context())
	if err != nil {
		slog.Error("max block query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	response := map[string]any{"max_block": nil}
	if ok {
		response["max_block"] = block
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

// parseTransferFilter accepts at most one of ?from= and ?to=.
func parseTransferFilter(r *http.Request) (application.TransferQueryFilter, error) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	switch {
	case from != "" && to != "":
		return application.TransferQueryFilter{}, errors.New("use either from or to, not both")
	case from != "":
		if !common.IsHexAddress(from) {
			return application.TransferQueryFilter{}, errors.New("invalid from address")
		}
		return application.TransferQueryFilter{Address: from, Direction: application.DirectionFrom}, nil
	case to != "":
		if !common.IsHexAddress(to) {
			return application.TransferQueryFilter{}, errors.New("invalid to address")
		}
		return application.TransferQueryFilter{Address: to, Direction: application.DirectionTo}, nil
	}
	return application.TransferQueryFilter{}, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
