package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/pingboard/pingboardd/internal/config"
	"github.com/pingboard/pingboardd/internal/health"
)

// MgmtService serves the service management API: the health document and
// the OAS3 interface description.
type MgmtService struct {
	cfg    *config.Config
	health *health.Aggregator
	server *http.Server
}

// NewMgmtService creates a new MgmtService.
func NewMgmtService(cfg *config.Config, aggregator *health.Aggregator) *MgmtService {
	return &MgmtService{
		cfg:    cfg,
		health: aggregator,
	}
}

// Start begins the management server if enabled.
func (s *MgmtService) Start(ctx context.Context) {
	if !s.cfg.Management.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *MgmtService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Management.Host, s.cfg.Management.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/v0/health", s.handleHealth)
	mux.HandleFunc("/v0/oas3", s.handleOAS3)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Info().Str("addr", addr).Msg("Starting management server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Management server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Management server error")
	}
}

// handleHealth serves the aggregated health snapshot. 200 when the whole
// service is healthy, 500 otherwise; an absent board does not count as
// unhealthy.
func (s *MgmtService) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.Snapshot()

	body, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if snapshot.Healthy() {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
	w.Write(body)
}

// handleOAS3 serves the static API description.
func (s *MgmtService) handleOAS3(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.cfg.Management.OAS3Path)
	if err != nil {
		log.Warn().Err(err).Str("path", s.cfg.Management.OAS3Path).Msg("OAS3 description not available")
		http.Error(w, "interface description not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write(data)
}
