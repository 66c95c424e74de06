package server

import (
	"net/http"

	"go.uber.org/zap"
)

// handleCleanupPreview handles GET /admin/cleanup: what a cleanup run
// would remove right now. Nothing is changed.
func (s *Server) handleCleanupPreview(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Reaper.Preview(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": sum})
}

// handleCleanupExecute handles POST /admin/cleanup: reap every expired
// project now.
func (s *Server) handleCleanupExecute(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Reaper.Execute(r.Context())
	if sum != nil {
		s.metrics.RecordReap(sum)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.log.Info("cleanup triggered",
		zap.String("rid", RequestIDFromContext(r.Context())),
		zap.Int("projects", sum.ProjectsProcessed),
		zap.Int("files", sum.FilesDeleted),
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": sum})
}
