// Package server exposes the analysis workflow over HTTP: submit a run,
// poll its status, fetch its result, and manage datasets.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"datapilot/internal/dataset"
	"datapilot/internal/engine"
	"datapilot/internal/logging"
	"datapilot/internal/store"
)

// Handlers carries the services the HTTP layer delegates to.
type Handlers struct {
	engine   *engine.Engine
	store    *store.Store
	datasets *Registry
	status   *gocache.Cache
	sem      *semaphore.Weighted
}

// New creates the handler set. maxConcurrent bounds how many runs execute
// at once; further submissions queue on the semaphore.
func New(eng *engine.Engine, st *store.Store, datasets *Registry, maxConcurrent int) *Handlers {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Handlers{
		engine:   eng,
		store:    st,
		datasets: datasets,
		status:   gocache.New(time.Hour, 10*time.Minute),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Router builds the gin router with CORS and all routes attached.
func (h *Handlers) Router(allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/analyze", h.Analyze)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.RunStatus)
		api.GET("/runs/:id/result", h.RunResult)
		api.POST("/datasets", h.UploadDataset)
		api.GET("/datasets", h.ListDatasets)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Server("%s %s -> %d (%v)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AnalyzeRequest is the run-submission payload.
type AnalyzeRequest struct {
	Query     string `json:"query" binding:"required"`
	Dataset   string `json:"dataset" binding:"required"`
	Sheet     string `json:"sheet"`
	ChartType string `json:"chart_type"`
}

// Analyze accepts a run request and returns its id immediately. The run
// executes on a background goroutine bounded by the semaphore.
func (h *Handlers) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query and dataset are required"})
		return
	}

	wb, err := h.datasets.Load(req.Dataset)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.NewString()
	if err := h.store.CreateRun(runID, req.Query, req.Dataset); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record run"})
		return
	}
	h.status.Set(runID, store.StatusRunning, gocache.DefaultExpiration)

	go h.runAnalysis(runID, req, wb)

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *Handlers) runAnalysis(runID string, req AnalyzeRequest, wb *dataset.Workbook) {
	ctx := context.Background()
	if err := h.sem.Acquire(ctx, 1); err != nil {
		h.finishRun(runID, nil, err)
		return
	}
	defer h.sem.Release(1)

	st, err := h.engine.Run(ctx, engine.Query{
		Text:      req.Query,
		Subset:    req.Sheet,
		ChartType: req.ChartType,
	}, wb)
	h.finishRun(runID, st, err)
}

func (h *Handlers) finishRun(runID string, st *engine.RunState, err error) {
	if err != nil {
		logging.Server("run %s failed: %v", runID, err)
		if serr := h.store.FailRun(runID, err.Error()); serr != nil {
			logging.Server("record failure for %s: %v", runID, serr)
		}
		h.status.Set(runID, store.StatusFailed, gocache.DefaultExpiration)
		return
	}
	if serr := h.store.CompleteRun(runID, st.Snapshot()); serr != nil {
		logging.Server("record completion for %s: %v", runID, serr)
	}
	h.status.Set(runID, store.StatusCompleted, gocache.DefaultExpiration)
}

// RunStatus reports where a run stands.
func (h *Handlers) RunStatus(c *gin.Context) {
	id := c.Param("id")

	if status, ok := h.status.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"run_id": id, "status": status})
		return
	}

	run, err := h.store.GetRun(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "status": run.Status})
}

// RunResult returns the final snapshot; 409 while the run is in flight.
func (h *Handlers) RunResult(c *gin.Context) {
	id := c.Param("id")

	run, err := h.store.GetRun(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	switch run.Status {
	case store.StatusRunning:
		c.JSON(http.StatusConflict, gin.H{"error": "run still in progress"})
	case store.StatusFailed:
		c.JSON(http.StatusOK, gin.H{"run_id": id, "status": run.Status, "error": run.Error})
	default:
		c.JSON(http.StatusOK, gin.H{"run_id": id, "status": run.Status, "result": run.Result})
	}
}

// ListRuns returns recent runs, newest first.
func (h *Handlers) ListRuns(c *gin.Context) {
	runs, err := h.store.ListRuns(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
