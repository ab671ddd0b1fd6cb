package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/run"
	"genescore/domain/scoring"
	"genescore/internal"
	"genescore/internal/engine"
	"genescore/internal/errors"
)

// pendingLimit bounds the asynchronous runs remembered in memory
const pendingLimit = 100

// Scorer is the part of the scoring service the API drives
type Scorer interface {
	ScoreDataset(ctx context.Context, source string, d *dataset.Dataset, sets []dataset.GeneSet, params scoring.Params, obs engine.Observer) (*run.Run, error)
	StartRun(source string, d *dataset.Dataset, params scoring.Params) *run.Run
	CompleteRun(ctx context.Context, rn *run.Run, d *dataset.Dataset, sets []dataset.GeneSet, obs engine.Observer) error
	GetRun(ctx context.Context, id string) (*run.Run, error)
	ListRuns(ctx context.Context, limit int) ([]run.Summary, error)
}

// Server is the scoring HTTP API
type Server struct {
	router   *gin.Engine
	scorer   Scorer
	defaults scoring.Params
	hub      *SSEHub
	logger   *internal.Logger
	timeout  time.Duration

	// asynchronous runs, newest last
	pending      map[string]*run.Run
	pendingOrder []string
	pendingMu    sync.RWMutex
	background   sync.WaitGroup
}

// NewServer creates the API. defaults seed the parameters of every request;
// timeout bounds asynchronous runs (0 means no limit).
func NewServer(scorer Scorer, defaults scoring.Params, timeout time.Duration, logger *internal.Logger) *Server {
	s := &Server{
		router:   gin.New(),
		scorer:   scorer,
		defaults: defaults,
		hub:      NewSSEHub(logger),
		logger:   logger,
		timeout:  timeout,
		pending:  make(map[string]*run.Run),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	v1.POST("/score", s.HandleScore)
	v1.GET("/runs", s.HandleListRuns)
	v1.GET("/runs/:id", s.HandleGetRun)
	v1.GET("/runs/:id/events", s.hub.HandleSSE)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close waits for asynchronous runs and stops the event hub
func (s *Server) Close() {
	s.background.Wait()
	s.hub.Close()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[API] %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// HandleScore scores the posted matrix. With "async": true it answers 202
// with the run id at once and streams progress on /runs/:id/events.
func (s *Server) HandleScore(c *gin.Context) {
	req := ScoreRequest{Params: s.defaults}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}

	d, err := req.Dataset()
	if err != nil {
		s.respondError(c, err)
		return
	}
	sets, err := req.Sets()
	if err != nil {
		s.respondError(c, err)
		return
	}
	params := req.Params
	if err := params.Validate(); err != nil {
		s.respondError(c, err)
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	if req.Async {
		rn := s.scorer.StartRun(source, d, params)
		id, status := rn.ID.String(), rn.Status
		s.startAsync(rn, d, sets)
		c.JSON(http.StatusAccepted, gin.H{
			"id":     id,
			"status": status,
			"events": "/api/v1/runs/" + id + "/events",
		})
		return
	}

	rn, err := s.scorer.ScoreDataset(c.Request.Context(), source, d, sets, params, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rn)
}

func (s *Server) startAsync(rn *run.Run, d *dataset.Dataset, sets []dataset.GeneSet) {
	id := rn.ID.String()
	snapshot := *rn
	s.remember(id, &snapshot)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		err := s.scorer.CompleteRun(ctx, rn, d, sets, newRunObserver(s.hub, id, len(sets)))
		s.remember(id, rn)

		event := RunEvent{RunID: id, EventType: EventRunCompleted, Progress: 1}
		if err != nil {
			s.logger.Warn("[API] run %s failed: %v", id, err)
			event.EventType = EventRunFailed
			event.Data = map[string]any{"error": err.Error()}
		}
		s.hub.Broadcast(event)
	}()
}

func (s *Server) remember(id string, rn *run.Run) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, seen := s.pending[id]; !seen {
		s.pendingOrder = append(s.pendingOrder, id)
		if len(s.pendingOrder) > pendingLimit {
			delete(s.pending, s.pendingOrder[0])
			s.pendingOrder = s.pendingOrder[1:]
		}
	}
	s.pending[id] = rn
}

func (s *Server) recall(id string) (*run.Run, bool) {
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	rn, ok := s.pending[id]
	return rn, ok
}

// HandleGetRun returns a run with its results. Recent asynchronous runs are
// served from memory; everything else comes from storage.
func (s *Server) HandleGetRun(c *gin.Context) {
	id := c.Param("id")
	if rn, ok := s.recall(id); ok {
		c.JSON(http.StatusOK, rn)
		return
	}

	rn, err := s.scorer.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rn)
}

// HandleListRuns lists stored runs, newest first
func (s *Server) HandleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 20
	}

	runs, err := s.scorer.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": codeFor(err, status)})
}

// statusFor maps domain and application errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case core.IsConfigurationError(err):
		return http.StatusBadRequest
	case core.IsDataShapeError(err):
		return http.StatusUnprocessableEntity
	case core.IsNotFoundError(err):
		return http.StatusNotFound
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid:
		return http.StatusBadRequest
	case errors.CodeDataShape:
		return http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func codeFor(err error, status int) string {
	if code := errors.GetCode(err); code != "UNKNOWN" {
		return code
	}
	switch status {
	case http.StatusBadRequest:
		return errors.CodeConfigInvalid
	case http.StatusUnprocessableEntity:
		return errors.CodeDataShape
	case http.StatusNotFound:
		return errors.CodeNotFound
	}
	return errors.CodeInternalError
}
