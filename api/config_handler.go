package api

import (
	"net/http"

	"github.com/seenimoa/finnews/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
type ConfigResponse struct {
	Config     config.Config      `json:"config"`
	ConfigFile string             `json:"config_file"` // path to the active config file
	Keys       []config.KeyStatus `json:"keys"`
}

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config:     s.cfg.Redacted(),
			ConfigFile: s.cfg.File,
			Keys:       config.CheckAPIKeys(s.cfg),
		},
	})
}
