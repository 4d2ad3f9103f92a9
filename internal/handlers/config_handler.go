package handlers

import (
	"net/http"

	"manuscript-review/internal/config"
)

// ConfigHandler exposes the public parts of the runtime configuration
type ConfigHandler struct {
	app      config.AppConfig
	workflow config.WorkflowConfig
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{app: cfg.App, workflow: cfg.Workflow}
}

// AppConfigResponse describes how this deployment runs the review workflow
type AppConfigResponse struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	EnableDrafts    bool   `json:"enable_drafts"`
	AutoCloseRounds bool   `json:"auto_close_rounds"`
	DefaultPageSize int    `json:"default_page_size"`
	MaxPageSize     int    `json:"max_page_size"`
}

// GetAppConfig returns the public app configuration
// @Summary Get app configuration
// @Description Workflow switches clients need to render the submission flow
// @Tags Configuration
// @Produce json
// @Success 200 {object} AppConfigResponse
// @Router /config/app [get]
func (h *ConfigHandler) GetAppConfig(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, AppConfigResponse{
		Name:            h.app.Name,
		Version:         h.app.Version,
		EnableDrafts:    h.workflow.EnableDrafts,
		AutoCloseRounds: h.workflow.AutoCloseRounds,
		DefaultPageSize: h.workflow.DefaultPageSize,
		MaxPageSize:     h.workflow.MaxPageSize,
	})
}
