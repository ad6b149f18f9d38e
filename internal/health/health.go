// Package health serves liveness and readiness probes for the admin
// listener. Liveness only confirms the process answers HTTP; readiness
// additionally probes the recognizer's dependencies (vocabulary, accent
// store, analytics log) and reports each one by name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds each readiness probe so a hung dependency cannot
// stall the whole endpoint.
const probeTimeout = 3 * time.Second

// Checker probes one dependency. Check returns nil when the dependency can
// serve requests and must honour context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// probe is the per-dependency entry in the readiness response.
type probe struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

type response struct {
	Status string           `json:"status"`
	Uptime string           `json:"uptime,omitempty"`
	Checks map[string]probe `json:"checks,omitempty"`
}

// Handler answers /healthz and /readyz. The checker set is fixed at
// construction, so the handler needs no locking.
type Handler struct {
	checkers []Checker
	started  time.Time
	clock    func() time.Time
}

// NewHandler builds a Handler over the given checkers. Checkers run in
// order on every readiness request.
func NewHandler(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
		clock:    time.Now,
	}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness. Answering at all is the signal, so it always
// returns 200 along with how long the process has been up.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{
		Status: "ok",
		Uptime: h.clock().Sub(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every checker and returns 200 only if all pass. A failing
// dependency yields 503 with the failure detail under its check name.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := response{
		Status: "ok",
		Checks: make(map[string]probe, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		start := h.clock()
		err := c.Check(ctx)
		elapsed := h.clock().Sub(start)
		cancel()

		p := probe{Status: "ok", Elapsed: elapsed.Round(time.Microsecond).String()}
		if err != nil {
			p.Status = "fail"
			p.Error = err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
		res.Checks[c.Name] = p
	}

	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
