package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/llm"
)

const heartbeatTimeout = 10 * time.Second

// LLMController reports on the completion service.
type LLMController struct {
	provider llm.Provider
	tracker  *llm.Tracker
	cfg      config.LLMConfig
}

func NewLLMController(provider llm.Provider, tracker *llm.Tracker, cfg config.LLMConfig) *LLMController {
	return &LLMController{provider: provider, tracker: tracker, cfg: cfg}
}

func (lc *LLMController) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), heartbeatTimeout)
	defer cancel()

	status := "healthy"
	var healthError string
	if err := lc.provider.Heartbeat(ctx); err != nil {
		status = "unhealthy"
		healthError = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"health_error": healthError,
		"provider":     lc.provider.Name(),
		"model":        lc.cfg.Model,
		"max_retries":  lc.cfg.MaxRetries,
		"timeout":      lc.cfg.Timeout.String(),
	})
}

// GetAPICalls returns the tracked completion calls, newest first.
func (lc *LLMController) GetAPICalls(c *gin.Context) {
	calls := lc.tracker.Calls()
	for i, j := 0, len(calls)-1; i < j; i, j = i+1, j-1 {
		calls[i], calls[j] = calls[j], calls[i]
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": calls,
		"total": len(calls),
	})
}

func (lc *LLMController) ClearAPICalls(c *gin.Context) {
	lc.tracker.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "API call history cleared"})
}
