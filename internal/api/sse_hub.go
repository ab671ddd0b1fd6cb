package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"genescore/domain/scoring"
	"genescore/internal"
)

// Event types streamed to clients
const (
	EventSetScored    = "set_scored"
	EventSetFailed    = "set_failed"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// RunEvent is one progress notification for a run
type RunEvent struct {
	RunID     string         `json:"run_id"`
	EventType string         `json:"event_type"`
	Set       string         `json:"set,omitempty"`
	Progress  float64        `json:"progress"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Terminal reports whether no further events follow for the run
func (e RunEvent) Terminal() bool {
	return e.EventType == EventRunCompleted || e.EventType == EventRunFailed
}

type sseClient struct {
	runID   string
	channel chan RunEvent
}

// SSEHub fans run events out to Server-Sent Events subscribers
type SSEHub struct {
	clients    map[string]map[chan RunEvent]bool
	clientsMu  sync.RWMutex
	register   chan sseClient
	unregister chan sseClient
	broadcast  chan RunEvent
	quit       chan struct{}
	logger     *internal.Logger
	keepAlive  time.Duration
}

// NewSSEHub creates a hub and starts its dispatch loop
func NewSSEHub(logger *internal.Logger) *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan RunEvent]bool),
		register:   make(chan sseClient, 10),
		unregister: make(chan sseClient, 10),
		broadcast:  make(chan RunEvent, 100),
		quit:       make(chan struct{}),
		logger:     logger,
		keepAlive:  30 * time.Second,
	}

	go hub.run()
	return hub
}

// Close stops the dispatch loop
func (h *SSEHub) Close() {
	close(h.quit)
}

func (h *SSEHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.runID] == nil {
				h.clients[client.runID] = make(map[chan RunEvent]bool)
			}
			h.clients[client.runID][client.channel] = true
			h.logger.Debug("[SSE] client registered for run %s (total clients: %d)", client.runID, len(h.clients[client.runID]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.runID]; exists {
				delete(clients, client.channel)
				if len(clients) == 0 {
					delete(h.clients, client.runID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.RunID] {
				select {
				case clientChan <- event:
				default:
					h.logger.Warn("[SSE] client channel full for run %s, skipping event", event.RunID)
				}
			}
			h.clientsMu.RUnlock()

		case <-h.quit:
			return
		}
	}
}

// Broadcast queues an event for the subscribers of its run
func (h *SSEHub) Broadcast(event RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("[SSE] broadcast channel full, dropping event: %s", event.EventType)
	}
}

// ClientCount returns the number of subscribers of a run
func (h *SSEHub) ClientCount(runID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[runID])
}

// HandleSSE streams the events of the run named by the :id path parameter
// until the run finishes or the client goes away
func (h *SSEHub) HandleSSE(c *gin.Context) {
	runID := c.Param("id")
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan RunEvent, 16)
	select {
	case h.register <- sseClient{runID: runID, channel: clientChan}:
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event hub registration failed"})
		return
	}
	defer func() {
		select {
		case h.unregister <- sseClient{runID: runID, channel: clientChan}:
		default:
		}
	}()

	// send headers now so clients see the stream before the first event
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-clientChan:
			eventJSON, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("[SSE] failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(event.EventType, string(eventJSON))
			return !event.Terminal()

		case <-time.After(h.keepAlive):
			c.SSEvent("ping", `{"status":"alive"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// runObserver adapts engine progress for one run into hub events
type runObserver struct {
	hub   *SSEHub
	runID string
	total int
	done  atomic.Int64
}

func newRunObserver(hub *SSEHub, runID string, total int) *runObserver {
	return &runObserver{hub: hub, runID: runID, total: max(total, 1)}
}

func (o *runObserver) progress() float64 {
	return float64(o.done.Add(1)) / float64(o.total)
}

func (o *runObserver) SetScored(res *scoring.SetResult) {
	o.hub.Broadcast(RunEvent{
		RunID:     o.runID,
		EventType: EventSetScored,
		Set:       res.Name,
		Progress:  o.progress(),
		Data: map[string]any{
			"mode":         res.Mode,
			"permutations": res.Permutations,
			"frozen":       res.Frozen,
		},
	})
}

func (o *runObserver) SetFailed(name string, err error) {
	o.hub.Broadcast(RunEvent{
		RunID:     o.runID,
		EventType: EventSetFailed,
		Set:       name,
		Progress:  o.progress(),
		Data:      map[string]any{"error": err.Error()},
	})
}

func (o *runObserver) Permutations(int) {}
