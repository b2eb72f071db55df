// Package dashboard serves live progress of an evaluation run over HTTP.
// It implements the harness observer interface, keeps one progress record
// per configuration and streams every change to WebSocket clients.
//
// Routes: /api/progress (JSON snapshot), /ws (WebSocket stream) and
// /metrics (Prometheus).
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"holdoutbench/internal/harness"
	"holdoutbench/internal/summary"
)

// ConfigurationProgress is the live state of one stage × model configuration.
type ConfigurationProgress struct {
	Stage     string                  `json:"stage"`
	Model     string                  `json:"model"`
	State     harness.State           `json:"state"`
	Seed      int64                   `json:"seed"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Total     int                     `json:"total"`
	Error     string                  `json:"error,omitempty"`
	Summaries []summary.MetricSummary `json:"summaries,omitempty"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Progress is a snapshot of every configuration seen so far.
type Progress struct {
	Timestamp      time.Time               `json:"timestamp"`
	Completed      int                     `json:"completed"`
	Configurations []ConfigurationProgress `json:"configurations"`
}

// Message is the envelope sent to WebSocket clients.
type Message struct {
	Type     string                 `json:"type"` // "snapshot" or "update"
	Snapshot *Progress              `json:"snapshot,omitempty"`
	Update   *ConfigurationProgress `json:"update,omitempty"`
}

// ProgressDashboard tracks harness events and serves them over HTTP.
type ProgressDashboard struct {
	iterations int

	router           *mux.Router
	server           *http.Server
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.Mutex
	broadcastChannel chan ConfigurationProgress
	stopChannel      chan struct{}
	stopOnce         sync.Once
	isRunning        bool
	stopped          bool
	mu               sync.Mutex

	progressMu sync.RWMutex
	progress   map[string]*ConfigurationProgress
}

// NewProgressDashboard creates a dashboard for runs of the given number of
// iterations. Metrics are served from gatherer, or the default registry when
// it is nil.
func NewProgressDashboard(iterations, port int, gatherer prometheus.Gatherer) *ProgressDashboard {
	d := &ProgressDashboard{
		iterations:       iterations,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan ConfigurationProgress, 100),
		stopChannel:      make(chan struct{}),
		progress:         make(map[string]*ConfigurationProgress),
	}

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/progress", d.handleProgressAPI).Methods("GET")
	r.HandleFunc("/ws", d.handleWebSocket).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")
	d.router = r

	d.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d
}

// Handler returns the dashboard's HTTP handler.
func (d *ProgressDashboard) Handler() http.Handler { return d.router }

// Start starts broadcasting and the HTTP server.
func (d *ProgressDashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("progress dashboard is already running")
	}
	if d.stopped {
		return fmt.Errorf("progress dashboard has been stopped")
	}

	go d.clientBroadcaster()

	go func() {
		log.Info().
			Str("address", d.server.Addr).
			Msg("Starting progress dashboard server")

		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Progress dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop disconnects clients and shuts the server down. The dashboard cannot
// be restarted afterwards, and later calls are no-ops even when shutdown
// failed.
func (d *ProgressDashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}
	d.isRunning = false
	d.stopped = true
	d.stopOnce.Do(func() { close(d.stopChannel) })

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown progress dashboard server")
		return err
	}

	log.Info().Msg("Progress dashboard stopped")
	return nil
}

// OnEvent implements harness.Observer.
func (d *ProgressDashboard) OnEvent(ev harness.Event) {
	d.update(ev.Stage, ev.Model, func(p *ConfigurationProgress) {
		p.State = ev.State
		if ev.Seed != 0 {
			p.Seed = ev.Seed
		}
		switch {
		case ev.Failure != nil:
			p.Failed++
		case ev.State == harness.StateRecorded:
			p.Succeeded++
		case ev.State == harness.StateAborted && ev.Err != nil:
			p.Error = ev.Err.Error()
		}
	})
}

// OnComplete implements harness.Observer.
func (d *ProgressDashboard) OnComplete(res *harness.ConfigurationResult) {
	d.update(res.Stage, res.Model, func(p *ConfigurationProgress) {
		p.State = res.Status
		p.Succeeded = len(res.Iterations)
		p.Failed = len(res.Failures)
		p.Error = res.Error
		p.Summaries = res.Summaries
	})
}

func (d *ProgressDashboard) update(stage, model string, fn func(*ConfigurationProgress)) {
	key := stage + "/" + model

	d.progressMu.Lock()
	p, ok := d.progress[key]
	if !ok {
		p = &ConfigurationProgress{Stage: stage, Model: model, Total: d.iterations}
		d.progress[key] = p
	}
	fn(p)
	p.UpdatedAt = time.Now()
	snapshot := *p
	d.progressMu.Unlock()

	select {
	case d.broadcastChannel <- snapshot:
	default:
		// Channel full, skip this update
	}
}

// Snapshot returns the current progress of every configuration ordered by
// stage and model.
func (d *ProgressDashboard) Snapshot() Progress {
	d.progressMu.RLock()
	defer d.progressMu.RUnlock()

	out := Progress{
		Timestamp:      time.Now(),
		Configurations: make([]ConfigurationProgress, 0, len(d.progress)),
	}
	for _, p := range d.progress {
		if p.State.Terminal() {
			out.Completed++
		}
		out.Configurations = append(out.Configurations, *p)
	}
	sort.Slice(out.Configurations, func(i, j int) bool {
		a, b := out.Configurations[i], out.Configurations[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		return a.Model < b.Model
	})
	return out
}

// clientBroadcaster forwards progress updates to every WebSocket client.
func (d *ProgressDashboard) clientBroadcaster() {
	for {
		select {
		case update := <-d.broadcastChannel:
			d.broadcastToClients(Message{Type: "update", Update: &update})
		case <-d.stopChannel:
			return
		}
	}
}

func (d *ProgressDashboard) broadcastToClients(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal progress for broadcast")
		return
	}

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()

	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Msg("Failed to send message to WebSocket client")
			client.Close()
			delete(d.clients, client)
		}
	}
}

// handleProgressAPI serves the progress snapshot as JSON.
func (d *ProgressDashboard) handleProgressAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to encode progress")
	}
}

// handleWebSocket registers a client, sends it the current snapshot and keeps
// the connection open until the client goes away.
func (d *ProgressDashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	snapshot := d.Snapshot()
	data, err := json.Marshal(Message{Type: "snapshot", Snapshot: &snapshot})
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal progress snapshot")
		return
	}

	d.clientsMu.Lock()
	d.clients[conn] = true
	err = conn.WriteMessage(websocket.TextMessage, data)
	d.clientsMu.Unlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to send progress snapshot")
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.clientsMu.Unlock()
}
