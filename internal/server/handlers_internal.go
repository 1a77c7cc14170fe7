package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerInternalRoutes exposes operator-facing surfaces. The /internal
// prefix is classified as privileged by the audit risk rules.
func (s *Server) registerInternalRoutes() {
	s.echo.GET("/internal/audit/recent", s.handleRecentAuditEvents)
}

// handleRecentAuditEvents returns the ring buffer of recent high and
// critical audit entries, newest first.
func (s *Server) handleRecentAuditEvents(c echo.Context) error {
	entries := s.trail.Recent()

	response := map[string]any{
		"count":   len(entries),
		"entries": entries,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
