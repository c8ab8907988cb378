package indexer

import (
	"encoding/json"
	"net/http"

	"github.com/canopy-network/ledgerx/pkg/indexer/processor"
	"github.com/canopy-network/ledgerx/pkg/indexer/reporter"
	"github.com/canopy-network/ledgerx/pkg/indexer/tailer"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// processorResponse is the body of GET /processors/{name}.
type processorResponse struct {
	reporter.ProcessorStatus
	Progress *tailer.Progress `json:"progress,omitempty"`
}

// SetupServer sets up the HTTP server.
func (a *App) SetupServer() {
	a.Server = &http.Server{Addr: a.Config.StatusAddr, Handler: a.Router()}
}

// Router returns the status API routes.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if a.Ready() {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(503)
		}
	})).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/processors", a.handleProcessors).Methods("GET")
	r.HandleFunc("/processors/{name}", a.handleProcessor).Methods("GET")

	return r
}

// Ready reports whether the upstream ledger was verified and the tailer is looping.
func (a *App) Ready() bool {
	return a.Tailer.LedgerVerified() && a.Tailer.Running() && !a.IsTerminating()
}

func (a *App) handleProcessors(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	for _, p := range a.Tailer.Processors() {
		names = append(names, p.Name())
	}
	a.writeJSON(w, http.StatusOK, map[string][]string{"processors": names})
}

func (a *App) handleProcessor(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var p processor.Processor
	for _, candidate := range a.Tailer.Processors() {
		if candidate.Name() == name {
			p = candidate
			break
		}
	}
	if p == nil {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown processor " + name})
		return
	}

	status, err := reporter.Status(r.Context(), p)
	if err != nil {
		a.Logger.Warn("Could not read processor status", zap.String("processor", name), zap.Error(err))
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := processorResponse{ProcessorStatus: status}
	if progress, ok := a.Tailer.Progress(name); ok {
		resp.Progress = &progress
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *App) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Debug("Could not write response", zap.Error(err))
	}
}
