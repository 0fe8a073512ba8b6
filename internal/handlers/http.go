// Package handlers exposes the workflow and analytics engines over HTTP.
// Persistence and tenant scoping live outside this service: analytics
// endpoints accept pre-filtered violation collections in the request body.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/analytics"
	"github.com/clearcomply/remediation-engine/internal/config"
	"github.com/clearcomply/remediation-engine/internal/model"
	"github.com/clearcomply/remediation-engine/internal/scheduler"
	"github.com/clearcomply/remediation-engine/internal/workflow"
)

// Handler handles remediation engine HTTP requests
type Handler struct {
	config    *config.Config
	engine    *workflow.Engine
	analytics *analytics.Engine
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cfg *config.Config,
	engine *workflow.Engine,
	analyticsEngine *analytics.Engine,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		config:    cfg,
		engine:    engine,
		analytics: analyticsEngine,
		scheduler: sched,
		logger:    logger,
	}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")

	// Workflow lifecycle endpoints
	api.POST("/workflows", h.CreateWorkflow)
	api.GET("/workflows", h.ListWorkflows)
	api.GET("/workflows/:workflow_id", h.GetWorkflow)
	api.GET("/workflows/:workflow_id/history", h.GetWorkflowHistory)
	api.POST("/workflows/:workflow_id/transition", h.TransitionWorkflow)
	api.POST("/workflows/:workflow_id/assign", h.AssignWorkflow)
	api.POST("/workflows/:workflow_id/comments", h.AddWorkflowComment)
	api.POST("/workflows/escalations/sweep", h.RunEscalationSweep)
	api.GET("/scheduler/tasks", h.GetSchedulerTasks)

	// Analytics endpoints
	api.POST("/analytics/trends", h.AnalyzeTrends)
	api.POST("/analytics/heatmap", h.GenerateHeatmap)
	api.POST("/analytics/department-risks", h.CalculateDepartmentRisks)
	api.POST("/analytics/compliance-score", h.CalculateComplianceScore)
	api.POST("/analytics/user-profiles", h.GenerateUserRiskProfiles)
	api.POST("/analytics/anomalies", h.DetectAnomalies)

	// Health check
	api.GET("/health", h.HealthCheck)

	if h.config.Monitoring.EnableMetrics {
		router.GET(h.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

// Workflow endpoints

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var request workflow.CreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wf, err := h.engine.CreateWorkflow(request)
	if err != nil {
		h.logger.Error("Failed to create workflow", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create workflow"})
		return
	}

	c.JSON(http.StatusCreated, wf)
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	workflows := h.engine.List(c.Query("tenant_id"))
	c.JSON(http.StatusOK, gin.H{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	wf, err := h.engine.Get(c.Param("workflow_id"))
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (h *Handler) GetWorkflowHistory(c *gin.Context) {
	history, err := h.engine.History(c.Param("workflow_id"))
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"total":   len(history),
	})
}

func (h *Handler) TransitionWorkflow(c *gin.Context) {
	var request struct {
		Action      string                 `json:"action" binding:"required"`
		PerformedBy string                 `json:"performed_by" binding:"required"`
		Comment     string                 `json:"comment"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wf, err := h.engine.Transition(c.Param("workflow_id"), model.Action(request.Action), request.PerformedBy, request.Comment, request.Metadata)
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, wf)
}

func (h *Handler) AssignWorkflow(c *gin.Context) {
	var request struct {
		AssignedTo string `json:"assigned_to" binding:"required"`
		AssignedBy string `json:"assigned_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wf, err := h.engine.Assign(c.Param("workflow_id"), request.AssignedTo, request.AssignedBy)
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, wf)
}

func (h *Handler) AddWorkflowComment(c *gin.Context) {
	var request struct {
		Text   string `json:"text" binding:"required"`
		Author string `json:"author" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wf, err := h.engine.AddComment(c.Param("workflow_id"), request.Text, request.Author)
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, wf)
}

func (h *Handler) RunEscalationSweep(c *gin.Context) {
	result := h.scheduler.RunSweepNow()
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.scheduler.Tasks()})
}

func (h *Handler) respondWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Workflow operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// Analytics endpoints

func (h *Handler) AnalyzeTrends(c *gin.Context) {
	var request struct {
		Violations []model.Violation `json:"violations"`
		Interval   string            `json:"interval"`
		Periods    int               `json:"periods"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.Periods <= 0 {
		request.Periods = 6
	}

	points := h.analytics.AnalyzeTrends(request.Violations, model.TrendInterval(request.Interval), request.Periods)
	c.JSON(http.StatusOK, gin.H{"trends": points})
}

func (h *Handler) GenerateHeatmap(c *gin.Context) {
	var request struct {
		Violations []model.Violation `json:"violations"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cells := h.analytics.GenerateRiskHeatmap(request.Violations)
	c.JSON(http.StatusOK, gin.H{"heatmap": cells})
}

func (h *Handler) CalculateDepartmentRisks(c *gin.Context) {
	var request struct {
		Violations         []model.Violation `json:"violations"`
		PreviousViolations []model.Violation `json:"previous_violations"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	risks := h.analytics.CalculateDepartmentRisks(request.Violations, request.PreviousViolations)
	c.JSON(http.StatusOK, gin.H{"department_risks": risks})
}

func (h *Handler) CalculateComplianceScore(c *gin.Context) {
	var request struct {
		Violations []model.Violation `json:"violations"`
		TotalUsers int               `json:"total_users"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	score := h.analytics.CalculateComplianceScore(request.Violations, request.TotalUsers)
	c.JSON(http.StatusOK, score)
}

func (h *Handler) GenerateUserRiskProfiles(c *gin.Context) {
	var request struct {
		Violations []model.Violation `json:"violations"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profiles := h.analytics.GenerateUserRiskProfiles(request.Violations)
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (h *Handler) DetectAnomalies(c *gin.Context) {
	var request struct {
		Current    []model.Violation `json:"current"`
		Historical []model.Violation `json:"historical"`
		Threshold  float64           `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threshold := request.Threshold
	if raw := c.Query("threshold"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			threshold = parsed
		}
	}

	anomalies := h.analytics.DetectAnomalies(request.Current, request.Historical, threshold)
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "remediation-engine",
		"timestamp": time.Now().UTC(),
	})
}
