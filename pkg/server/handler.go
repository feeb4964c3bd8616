package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.health)
	r.POST("/quiz", h.solve)

	api := r.Group("/api")
	{
		api.GET("/jobs", h.listJobs)
		api.GET("/jobs/:id", h.getJob)
		api.GET("/jobs/:id/logs", h.getJobLogs)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// solve runs one quiz chain synchronously and returns the report. The chain
// budget keeps the request bounded, so no async job polling is needed.
func (h *Handler) solve(c *gin.Context) {
	var req SolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The secret gates the orchestrator and is forwarded to the grading
	// endpoint with every answer. No configured secret means no solving:
	// the guard fails closed rather than letting every request through.
	if h.Service.Cfg.Secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server secret is not configured"})
		return
	}
	if req.Secret != h.Service.Cfg.Secret {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid secret"})
		return
	}

	report, jobID, err := h.Service.Solve(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"report": report,
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	if h.Service.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history requires a database"})
		return
	}

	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	if h.Service.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history requires a database"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	if h.Service.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history requires a database"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
