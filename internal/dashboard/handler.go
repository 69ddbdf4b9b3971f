package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/apply"
	"github.com/aboutus/listsync/internal/ensure"
	"github.com/aboutus/listsync/internal/remote"
)

// ResultData is one entity outcome.
type ResultData struct {
	List    string   `json:"list"`
	Entity  string   `json:"entity"`
	Name    string   `json:"name"`
	Action  string   `json:"action"`
	Changed []string `json:"changed,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RunStartedData announces a run.
type RunStartedData struct {
	List    string `json:"list"`
	Trigger string `json:"trigger"`
}

// RunFinishedData summarizes a run.
type RunFinishedData struct {
	RunID           string         `json:"run_id"`
	List            string         `json:"list"`
	ListID          string         `json:"list_id,omitempty"`
	TemplateVersion string         `json:"template_version"`
	Created         bool           `json:"created"`
	Counts          map[string]int `json:"counts"`
	Duration        time.Duration  `json:"duration"`
	Error           string         `json:"error,omitempty"`
}

// StatsData holds running totals since the dashboard started.
type StatsData struct {
	Runs        int              `json:"runs"`
	FailedRuns  int              `json:"failed_runs"`
	Results     map[string]int   `json:"results"`
	Running     bool             `json:"running"`
	LastRun     *RunFinishedData `json:"last_run,omitempty"`
	LastTrigger string           `json:"last_trigger,omitempty"`
}

// Snapshot is the last remote state an orchestrator read.
type Snapshot interface {
	List() remote.ListInfo
	Fields() []remote.RemoteField
	Views() []remote.RemoteView
}

// Handler turns run events into dashboard messages.
type Handler struct {
	server *Server
	logger *zap.Logger

	mu    sync.Mutex
	stats StatsData

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// NewHandler creates a handler broadcasting through server. New clients
// receive the current totals first.
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		server: server,
		logger: logger.Named("dashboard"),
		stats:  StatsData{Results: make(map[string]int)},
	}
	server.SetWelcome(h.statsMessage)
	server.Handle("/snapshot", http.HandlerFunc(h.serveSnapshot))
	return h
}

// SetSnapshot sets the orchestrator whose state /snapshot serves.
func (h *Handler) SetSnapshot(s Snapshot) {
	h.snapMu.Lock()
	h.snapshot = s
	h.snapMu.Unlock()
}

// Observer returns an apply.Observer that broadcasts every result.
func (h *Handler) Observer() apply.Observer {
	return func(list string, r apply.Result) {
		data := ResultData{
			List:    list,
			Entity:  string(r.Entity),
			Name:    r.Name,
			Action:  string(r.Action),
			Changed: r.Changed,
		}
		if r.Err != nil {
			data.Error = r.Err.Error()
		}

		h.mu.Lock()
		h.stats.Results[data.Action]++
		h.mu.Unlock()

		h.send(MessageTypeResult, data)
	}
}

// OnRunStarted announces a run on list.
func (h *Handler) OnRunStarted(list, trigger string) {
	h.mu.Lock()
	h.stats.Running = true
	h.stats.LastTrigger = trigger
	h.mu.Unlock()

	h.send(MessageTypeRunStarted, RunStartedData{List: list, Trigger: trigger})
}

// OnRunFinished publishes the summary of rep. runErr is what Ensure returned.
func (h *Handler) OnRunFinished(rep *ensure.Report, runErr error) {
	data := RunFinishedData{
		RunID:           rep.RunID,
		List:            rep.List,
		ListID:          rep.ListID,
		TemplateVersion: rep.TemplateVersion,
		Created:         rep.Created,
		Counts:          make(map[string]int),
		Duration:        rep.Duration(),
	}
	for action, n := range rep.Counts() {
		data.Counts[string(action)] = n
	}
	if runErr != nil {
		data.Error = runErr.Error()
	}

	h.mu.Lock()
	h.stats.Runs++
	if runErr != nil || !rep.Complete() {
		h.stats.FailedRuns++
	}
	h.stats.Running = false
	h.stats.LastRun = &data
	h.mu.Unlock()

	h.send(MessageTypeRunFinished, data)
	h.server.Broadcast(h.statsMessage())
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.copyStats()
}

func (h *Handler) copyStats() StatsData {
	out := h.stats
	out.Results = make(map[string]int, len(h.stats.Results))
	for k, v := range h.stats.Results {
		out.Results[k] = v
	}
	return out
}

func (h *Handler) statsMessage() Message {
	h.mu.Lock()
	stats := h.copyStats()
	h.mu.Unlock()

	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.Warn("failed to marshal stats", zap.Error(err))
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

type snapshotResponse struct {
	List   remote.ListInfo      `json:"list"`
	Fields []remote.RemoteField `json:"fields"`
	Views  []remote.RemoteView  `json:"views"`
}

func (h *Handler) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	h.snapMu.RLock()
	snap := h.snapshot
	h.snapMu.RUnlock()

	if snap == nil {
		http.Error(w, "no run yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshotResponse{
		List:   snap.List(),
		Fields: snap.Fields(),
		Views:  snap.Views(),
	})
}
