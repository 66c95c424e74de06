package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/config"
	"github.com/hide-yama/file-share/internal/sharing"
)

func (s *Server) accessRequest(r *http.Request, id, pw string) sharing.AccessRequest {
	return sharing.AccessRequest{
		ProjectID:  id,
		Password:   pw,
		Token:      r.URL.Query().Get("token"),
		RemoteAddr: s.clientIP(r),
		UserAgent:  r.UserAgent(),
	}
}

// handleListProject handles POST /projects/{id} with {"password": "..."}.
func (s *Server) handleListProject(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	listing, err := s.deps.Gate.List(r.Context(), s.accessRequest(r, r.PathValue("id"), req.Password))
	if err != nil {
		s.deny(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"project": listing,
	})
}

// handleSignedURL handles GET /projects/{id}/files/{filename}/url and
// returns a time-limited direct link instead of the bytes.
func (s *Server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	req := s.accessRequest(r, r.PathValue("id"), r.URL.Query().Get("password"))
	signed, err := s.deps.Gate.SignedURL(r.Context(), req, r.PathValue("filename"))
	if err != nil {
		s.deny(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, signed)
}

// handleDownload handles GET /download/{id}/{filename}?password= or
// ?token=. In redirect mode the client is sent to a signed blob-store URL;
// otherwise the bytes are streamed through the service.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, name := r.PathValue("id"), r.PathValue("filename")
	req := s.accessRequest(r, id, r.URL.Query().Get("password"))

	if s.cfg.DownloadMode == config.DownloadRedirect {
		signed, err := s.deps.Gate.SignedURL(r.Context(), req, name)
		if err != nil {
			s.metrics.RecordDownloadError()
			s.deny(w, r, err)
			return
		}
		noStore(w)
		s.metrics.RecordDownload(0, time.Since(start))
		http.Redirect(w, r, signed.URL, http.StatusFound)
		return
	}

	dl, err := s.deps.Gate.Open(r.Context(), req, name)
	if err != nil {
		s.metrics.RecordDownloadError()
		s.deny(w, r, err)
		return
	}
	defer func() { _ = dl.Body.Close() }()

	ct := dl.File.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if dl.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.File.Size, 10))
	}
	w.Header().Set("Content-Disposition", contentDisposition(dl.File.Name))
	noStore(w)
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, dl.Body)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		s.log.Warn("download interrupted",
			zap.String("project_id", id),
			zap.String("file", dl.File.Name),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
		s.metrics.RecordDownloadError()
		return
	}
	s.metrics.RecordDownload(n, time.Since(start))
}

// contentDisposition forces a download and keeps non-ASCII names intact
// via the RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, url.PathEscape(name))
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}
