// prometheus.go - Prometheus text exposition of the in-process counters.
package server

import (
	"fmt"
	"net/http"
	"strings"
)

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(m.exposition()))
	}
}

func (m *Metrics) exposition() string {
	snap := m.Snapshot()
	var out strings.Builder

	counter := func(name, help string, v int64) {
		fmt.Fprintf(&out, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}

	counter("sfd_requests_total", "Total number of HTTP requests", snap.RequestsTotal)
	counter("sfd_request_errors_4xx_total", "HTTP responses with a 4xx status", snap.RequestErrors4xx)
	counter("sfd_request_errors_5xx_total", "HTTP responses with a 5xx status", snap.RequestErrors5xx)

	counter("sfd_uploads_total", "Projects created", snap.UploadsTotal)
	counter("sfd_upload_bytes_total", "Bytes accepted in created projects", snap.UploadBytesTotal)
	counter("sfd_upload_failures_total", "Rejected or failed uploads", snap.UploadErrorsTotal)

	counter("sfd_downloads_total", "Completed downloads", snap.DownloadsTotal)
	counter("sfd_download_bytes_total", "Bytes streamed to downloaders", snap.DownloadBytesTotal)
	counter("sfd_download_failures_total", "Refused or failed downloads", snap.DownloadErrorsTotal)

	out.WriteString("# HELP sfd_access_denied_total Refused project reads by reason\n")
	out.WriteString("# TYPE sfd_access_denied_total counter\n")
	for _, d := range snap.Denials {
		fmt.Fprintf(&out, "sfd_access_denied_total{reason=\"%s\"} %d\n", prometheusLabel(d.Reason), d.Count)
	}
	out.WriteString("\n")

	counter("sfd_reaper_runs_total", "Executed reaper runs", snap.ReaperRunsTotal)
	counter("sfd_reaper_projects_total", "Projects reaped", snap.ReaperProjectsTotal)
	counter("sfd_reaper_files_total", "Blobs deleted by the reaper", snap.ReaperFilesTotal)
	counter("sfd_reaper_bytes_total", "Bytes reclaimed by the reaper", snap.ReaperBytesTotal)
	counter("sfd_reaper_failures_total", "Reaper file and project failures", snap.ReaperFailuresTotal)

	counter("sfd_rooms_created_total", "Text rooms created", snap.RoomsCreatedTotal)
	counter("sfd_room_updates_total", "Text room writes", snap.RoomUpdatesTotal)

	out.WriteString("# HELP sfd_uptime_seconds Application uptime in seconds\n")
	out.WriteString("# TYPE sfd_uptime_seconds gauge\n")
	fmt.Fprintf(&out, "sfd_uptime_seconds %.0f\n", snap.UptimeSeconds)

	return out.String()
}

// prometheusLabel escapes a label value.
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
