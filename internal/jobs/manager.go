package jobs

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"video2article/internal/domain"
)

var (
	// ErrJobAlreadyRunning is returned when a job is started while another is active.
	ErrJobAlreadyRunning = errors.New("job already running")
	// ErrNoRunningJob is returned when there is nothing to cancel.
	ErrNoRunningJob = errors.New("no running job")
	// ErrInvalidTransition is returned for a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrStaleJob is returned when an update names a job that is no longer current.
	ErrStaleJob = errors.New("job is no longer current")
)

// transitions lists the statuses reachable from each status.
var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusIdle:         {domain.JobStatusFetching},
	domain.JobStatusFetching:     {domain.JobStatusTranscribing, domain.JobStatusFailed, domain.JobStatusCancelled},
	domain.JobStatusTranscribing: {domain.JobStatusFormatting, domain.JobStatusFailed, domain.JobStatusCancelled},
	domain.JobStatusFormatting:   {domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled},
	domain.JobStatusDone:         {domain.JobStatusFetching, domain.JobStatusIdle},
	domain.JobStatusFailed:       {domain.JobStatusFetching, domain.JobStatusIdle},
	domain.JobStatusCancelled:    {domain.JobStatusFetching, domain.JobStatusIdle},
}

// Manager owns the one job that may be active at a time.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
	now     func() time.Time
}

// NewManager returns an idle manager.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{Status: domain.JobStatusIdle},
		now:     time.Now,
	}
}

// Start replaces the previous job with a new one in the fetching stage.
func (m *Manager) Start(jobID, sourceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if IsRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}
	m.current = domain.Job{
		ID:        jobID,
		SourceURL: sourceURL,
		Status:    domain.JobStatusFetching,
		StartedAt: m.now().UTC(),
	}
	return nil
}

// Transition moves jobID to status. Repeating the current status is a no-op.
// A job that has been replaced by a newer one is left untouched.
func (m *Manager) Transition(jobID string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("%w: no job to move to %s", ErrInvalidTransition, status)
	}
	if m.current.ID != jobID {
		return fmt.Errorf("%w: %s", ErrStaleJob, jobID)
	}
	return m.moveTo(status)
}

// Cancel marks the active job cancelled.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !IsRunning(m.current.Status) {
		return ErrNoRunningJob
	}
	return m.moveTo(domain.JobStatusCancelled)
}

func (m *Manager) moveTo(status domain.JobStatus) error {
	from := m.current.Status
	switch {
	case m.current.ID == "" && status != domain.JobStatusIdle:
		return fmt.Errorf("%w: no job to move to %s", ErrInvalidTransition, status)
	case status == from:
		return nil
	case !slices.Contains(transitions[from], status):
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	m.current.Status = status
	if IsTerminal(status) {
		m.current.FinishedAt = m.now().UTC()
	}
	return nil
}

// Describe fills in the title and audio path of jobID. Updates for an older job are dropped.
func (m *Manager) Describe(jobID, title, audioPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == jobID {
		m.current.Title = title
		m.current.AudioPath = audioPath
	}
}

// Current returns a copy of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset forgets the current job.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current job is in an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return IsRunning(m.current.Status)
}

// IsRunning reports whether status is one of the pipeline stages.
func IsRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusFetching, domain.JobStatusTranscribing, domain.JobStatusFormatting:
		return true
	}
	return false
}

// IsTerminal reports whether status ends a job.
func IsTerminal(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	}
	return false
}
