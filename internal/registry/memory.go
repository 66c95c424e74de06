package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Registry used by tests and local runs. Failures
// can be injected per operation with Fail.
type Memory struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*Project
	files    map[uuid.UUID][]File
	logs     []AccessLogEntry
	failures map[string]error
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[uuid.UUID]*Project),
		files:    make(map[uuid.UUID][]File),
		failures: make(map[string]error),
	}
}

// Fail makes every call to op (a Registry method name such as
// "CreateFiles") return err until cleared with a nil err.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["CreateProject"]; err != nil {
		return err
	}
	if err := validateProject(p); err != nil {
		return err
	}
	if _, ok := m.projects[p.ID]; ok {
		return ErrConflict
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) CreateFiles(_ context.Context, files []File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["CreateFiles"]; err != nil {
		return err
	}

	// Check everything first so the batch is all-or-nothing.
	names := make(map[uuid.UUID]map[string]bool)
	for _, f := range files {
		if _, ok := m.projects[f.ProjectID]; !ok {
			return ErrNotFound
		}
		if names[f.ProjectID] == nil {
			names[f.ProjectID] = make(map[string]bool)
			for _, existing := range m.files[f.ProjectID] {
				names[f.ProjectID][existing.Name] = true
			}
		}
		if names[f.ProjectID][f.Name] {
			return ErrConflict
		}
		names[f.ProjectID][f.Name] = true
	}

	for _, f := range files {
		m.files[f.ProjectID] = append(m.files[f.ProjectID], f)
	}
	return nil
}

func (m *Memory) DeleteProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["DeleteProject"]; err != nil {
		return err
	}
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	delete(m.files, id)
	return nil
}

func (m *Memory) GetProject(_ context.Context, id uuid.UUID) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["GetProject"]; err != nil {
		return nil, err
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListFiles(_ context.Context, projectID uuid.UUID) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ListFiles"]; err != nil {
		return nil, err
	}
	return sortedFiles(m.files[projectID]), nil
}

func (m *Memory) GetFile(_ context.Context, projectID uuid.UUID, name string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["GetFile"]; err != nil {
		return nil, err
	}
	for _, f := range m.files[projectID] {
		if f.Name == name {
			cp := f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ActivateProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ActivateProject"]; err != nil {
		return err
	}
	p, ok := m.projects[id]
	if !ok || p.Status != StatusPending {
		return ErrNotFound
	}
	p.Status = StatusReady
	return nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time) ([]ExpiredProject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["ListExpired"]; err != nil {
		return nil, err
	}

	var out []ExpiredProject
	for id, p := range m.projects {
		if p.DeletedAt != nil || !p.ExpiresAt.Before(now) {
			continue
		}
		ep := ExpiredProject{Project: *p}
		for _, f := range sortedFiles(m.files[id]) {
			if f.PurgedAt == nil {
				ep.Files = append(ep.Files, f)
			}
		}
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out, nil
}

func (m *Memory) MarkFilePurged(_ context.Context, fileID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["MarkFilePurged"]; err != nil {
		return err
	}
	for pid, files := range m.files {
		for i := range files {
			if files[i].ID == fileID && files[i].PurgedAt == nil {
				t := at
				m.files[pid][i].PurgedAt = &t
				return nil
			}
		}
	}
	return nil
}

func (m *Memory) MarkProjectDeleted(_ context.Context, id uuid.UUID, at time.Time, reclaimed int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["MarkProjectDeleted"]; err != nil {
		return false, err
	}
	p, ok := m.projects[id]
	if !ok || p.DeletedAt != nil {
		return false, nil
	}
	t := at
	p.DeletedAt = &t
	p.ReclaimedBytes += reclaimed
	return true, nil
}

func (m *Memory) AppendAccessLog(_ context.Context, e AccessLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["AppendAccessLog"]; err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.logs = append(m.logs, e)
	return nil
}

func (m *Memory) AccessLog(_ context.Context, projectID uuid.UUID) ([]AccessLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["AccessLog"]; err != nil {
		return nil, err
	}
	var out []AccessLogEntry
	for _, e := range m.logs {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures["Ping"]
}

// SetProject overwrites a stored project. Tests use it to move expiry or
// deletion timestamps.
func (m *Memory) SetProject(p Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = &p
}

// Counts returns the number of project and file rows.
func (m *Memory) Counts() (projects, files int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fs := range m.files {
		files += len(fs)
	}
	return len(m.projects), files
}

func sortedFiles(in []File) []File {
	out := make([]File, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
