package server

import (
	"net/http"

	"github.com/aristath/permanent/internal/httpapi"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "permanent",
	}

	httpapi.WriteJSON(w, s.log, http.StatusOK, response)
}
