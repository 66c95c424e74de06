package server

import (
	"sort"
	"sync"
	"time"

	"github.com/hide-yama/file-share/internal/sharing"
)

// Metrics holds application counters.
type Metrics struct {
	mu      sync.RWMutex
	started time.Time

	// Upload metrics
	uploadsTotal        int64
	uploadBytesTotal    int64
	uploadErrorsTotal   int64
	uploadDurationTotal time.Duration

	// Download metrics
	downloadsTotal        int64
	downloadBytesTotal    int64
	downloadErrorsTotal   int64
	downloadDurationTotal time.Duration

	// Refused reads by reason
	denials map[string]int64

	// Reaper metrics
	reaperRunsTotal     int64
	reaperProjectsTotal int64
	reaperFilesTotal    int64
	reaperBytesTotal    int64
	reaperFailuresTotal int64

	// Room metrics
	roomsCreatedTotal int64
	roomUpdatesTotal  int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now(), denials: make(map[string]int64)}
}

// RecordUpload records a successful upload
func (m *Metrics) RecordUpload(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
	m.uploadDurationTotal += duration
}

// RecordUploadError records an upload error
func (m *Metrics) RecordUploadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErrorsTotal++
}

// RecordDownload records a successful download
func (m *Metrics) RecordDownload(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
	m.downloadDurationTotal += duration
}

// RecordDownloadError records a download error
func (m *Metrics) RecordDownloadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErrorsTotal++
}

// RecordDenial counts a refused project read.
func (m *Metrics) RecordDenial(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denials[reason]++
}

// RecordReap adds one reaper run.
func (m *Metrics) RecordReap(sum *sharing.ReapSummary) {
	if sum.Mode != sharing.ModeExecute {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaperRunsTotal++
	m.reaperProjectsTotal += int64(sum.ProjectsProcessed)
	m.reaperFilesTotal += int64(sum.FilesDeleted)
	m.reaperBytesTotal += sum.BytesReclaimed
	m.reaperFailuresTotal += int64(sum.FileFailures + sum.ProjectFailures)
}

func (m *Metrics) RecordRoomCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomsCreatedTotal++
}

func (m *Metrics) RecordRoomUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomUpdatesTotal++
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// Denial is one reason bucket of refused reads.
type Denial struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	denials := make([]Denial, 0, len(m.denials))
	for reason, n := range m.denials {
		denials = append(denials, Denial{Reason: reason, Count: n})
	}
	sort.Slice(denials, func(i, j int) bool { return denials[i].Reason < denials[j].Reason })

	return MetricsSnapshot{
		UploadsTotal:          m.uploadsTotal,
		UploadBytesTotal:      m.uploadBytesTotal,
		UploadErrorsTotal:     m.uploadErrorsTotal,
		UploadAvgDurationMs:   avgDuration(m.uploadDurationTotal, m.uploadsTotal),
		DownloadsTotal:        m.downloadsTotal,
		DownloadBytesTotal:    m.downloadBytesTotal,
		DownloadErrorsTotal:   m.downloadErrorsTotal,
		DownloadAvgDurationMs: avgDuration(m.downloadDurationTotal, m.downloadsTotal),
		Denials:               denials,
		ReaperRunsTotal:       m.reaperRunsTotal,
		ReaperProjectsTotal:   m.reaperProjectsTotal,
		ReaperFilesTotal:      m.reaperFilesTotal,
		ReaperBytesTotal:      m.reaperBytesTotal,
		ReaperFailuresTotal:   m.reaperFailuresTotal,
		RoomsCreatedTotal:     m.roomsCreatedTotal,
		RoomUpdatesTotal:      m.roomUpdatesTotal,
		RequestsTotal:         m.requestsTotal,
		RequestErrors5xx:      m.requestErrors5xx,
		RequestErrors4xx:      m.requestErrors4xx,
		UptimeSeconds:         time.Since(m.started).Seconds(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Upload metrics
	UploadsTotal        int64   `json:"uploads_total"`
	UploadBytesTotal    int64   `json:"upload_bytes_total"`
	UploadErrorsTotal   int64   `json:"upload_errors_total"`
	UploadAvgDurationMs float64 `json:"upload_avg_duration_ms"`

	// Download metrics
	DownloadsTotal        int64   `json:"downloads_total"`
	DownloadBytesTotal    int64   `json:"download_bytes_total"`
	DownloadErrorsTotal   int64   `json:"download_errors_total"`
	DownloadAvgDurationMs float64 `json:"download_avg_duration_ms"`

	Denials []Denial `json:"denials"`

	// Reaper metrics
	ReaperRunsTotal     int64 `json:"reaper_runs_total"`
	ReaperProjectsTotal int64 `json:"reaper_projects_total"`
	ReaperFilesTotal    int64 `json:"reaper_files_total"`
	ReaperBytesTotal    int64 `json:"reaper_bytes_total"`
	ReaperFailuresTotal int64 `json:"reaper_failures_total"`

	RoomsCreatedTotal int64 `json:"rooms_created_total"`
	RoomUpdatesTotal  int64 `json:"room_updates_total"`

	// System metrics
	RequestsTotal    int64   `json:"requests_total"`
	RequestErrors5xx int64   `json:"request_errors_5xx"`
	RequestErrors4xx int64   `json:"request_errors_4xx"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
