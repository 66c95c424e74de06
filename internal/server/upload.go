package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hide-yama/file-share/internal/sharing"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 32 << 20

// handleUpload handles POST /upload. The body is multipart with an
// optional "name" field and one "files" part per file. The whole batch is
// stored or none of it is.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.cfg.MaxUploadBytes > 0 {
		if r.ContentLength > s.cfg.MaxUploadBytes {
			s.metrics.RecordUploadError()
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.metrics.RecordUploadError()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad multipart")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}

	files := make([]sharing.IncomingFile, 0, len(headers))
	defer func() {
		for _, f := range files {
			if c, ok := f.Body.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()
	for _, fh := range headers {
		body, err := fh.Open()
		if err != nil {
			s.metrics.RecordUploadError()
			writeError(w, http.StatusBadRequest, "bad multipart")
			return
		}
		files = append(files, sharing.IncomingFile{
			FileSpec: sharing.FileSpec{
				Name:        fh.Filename,
				Size:        fh.Size,
				ContentType: partContentType(fh),
			},
			Body: body,
		})
	}

	res, err := s.deps.Coordinator.Upload(r.Context(), sharing.UploadRequest{
		Name:  r.FormValue("name"),
		Files: files,
	})
	if err != nil {
		s.metrics.RecordUploadError()
		s.writeDomainError(w, r, err)
		return
	}

	var total int64
	for _, f := range res.Files {
		total += f.Size
	}
	s.metrics.RecordUpload(total, time.Since(start))
	s.log.Info("project uploaded",
		zap.String("project_id", res.ProjectID.String()),
		zap.Int("files", len(res.Files)),
		zap.Int64("bytes", total),
	)
	writeJSON(w, http.StatusCreated, res)
}

func partContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// handleReserve handles POST /upload/direct. It registers the batch and
// returns one presigned PUT URL per file; the project stays hidden until
// the client calls complete.
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req sharing.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.deps.Coordinator.Reserve(r.Context(), req)
	if err != nil {
		s.metrics.RecordUploadError()
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// handleComplete handles POST /upload/direct/{id}/complete.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.deps.Coordinator.Complete(r.Context(), s.accessRequest(r, r.PathValue("id"), req.Password))
	if err != nil {
		s.metrics.RecordUploadError()
		s.writeDomainError(w, r, err)
		return
	}

	var total int64
	for _, f := range res.Files {
		total += f.Size
	}
	s.metrics.RecordUpload(total, time.Since(start))
	writeJSON(w, http.StatusOK, res)
}
