// Package session is the process-wide job state: the single-flight flags of
// the dispatch and contacts jobs, their progress, the OTP challenge, the
// uploaded lists and the in-memory dispatch report.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/logging"
)

var ErrAlreadyRunning = errors.New("job already running")

type JobState string

const (
	StateIdle      JobState = "IDLE"
	StateRunning   JobState = "RUNNING"
	StateCompleted JobState = "COMPLETED"
	StateStopped   JobState = "STOPPED"
	StateFailed    JobState = "FAILED"
)

// DispatchStatus is a snapshot of the dispatch job for status polls.
type DispatchStatus struct {
	State      JobState   `json:"state"`
	Running    bool       `json:"is_running"`
	Step       string     `json:"current_step"`
	JobID      string     `json:"job_id,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	LoginState string     `json:"login_state,omitempty"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ContactsStatus is a snapshot of the contacts job.
type ContactsStatus struct {
	State          JobState `json:"state"`
	Running        bool     `json:"is_running"`
	JobID          string   `json:"job_id,omitempty"`
	Current        int      `json:"progress"`
	Total          int      `json:"total"`
	Success        int      `json:"success_count"`
	Failed         int      `json:"failed_count"`
	Text           string   `json:"status"`
	Completed      bool     `json:"completed"`
	Error          string   `json:"error,omitempty"`
	DuplicateCount int      `json:"duplicate_count"`
	InvalidCount   int      `json:"invalid_count"`
	FilteredCount  int      `json:"filtered_count"`
}

type State struct {
	OTP  Challenge
	Ring *logging.Ring

	dispatchRunning atomic.Bool
	dispatchStop    atomic.Bool
	contactsRunning atomic.Bool
	contactsStop    atomic.Bool

	mu       sync.Mutex
	dispatch DispatchStatus
	contacts ContactsStatus
	targets  []string
	filtered []domain.Contact
	report   []domain.Outcome
}

func New(ring *logging.Ring) *State {
	return &State{
		Ring:     ring,
		dispatch: DispatchStatus{State: StateIdle},
		contacts: ContactsStatus{State: StateIdle},
	}
}

// TryStartDispatch claims the dispatch slot. It returns false, leaving the
// running job untouched, when a dispatch job is already in flight.
func (s *State) TryStartDispatch(jobID, mode string) bool {
	if !s.dispatchRunning.CompareAndSwap(false, true) {
		return false
	}
	s.dispatchStop.Store(false)
	now := time.Now()
	s.mu.Lock()
	s.dispatch = DispatchStatus{
		State:     StateRunning,
		Running:   true,
		JobID:     jobID,
		Mode:      mode,
		Step:      "starting",
		StartedAt: &now,
	}
	s.mu.Unlock()
	return true
}

// FinishDispatch records the terminal state and releases the slot.
func (s *State) FinishDispatch(state JobState, errMsg string) {
	now := time.Now()
	s.mu.Lock()
	s.dispatch.State = state
	s.dispatch.Running = false
	s.dispatch.Error = errMsg
	s.dispatch.FinishedAt = &now
	s.mu.Unlock()
	s.OTP.Clear()
	s.dispatchRunning.Store(false)
}

func (s *State) DispatchRunning() bool { return s.dispatchRunning.Load() }

func (s *State) SetStep(step string) {
	s.mu.Lock()
	s.dispatch.Step = step
	s.mu.Unlock()
}

func (s *State) SetLoginState(v string) {
	s.mu.Lock()
	s.dispatch.LoginState = v
	s.mu.Unlock()
}

func (s *State) SetProgress(processed, total int) {
	s.mu.Lock()
	s.dispatch.Processed = processed
	s.dispatch.Total = total
	s.mu.Unlock()
}

// RequestStop raises the cooperative stop flag of the dispatch job and
// reports whether a job was running to see it.
func (s *State) RequestStop() bool {
	s.dispatchStop.Store(true)
	return s.dispatchRunning.Load()
}

func (s *State) StopRequested() bool { return s.dispatchStop.Load() }

func (s *State) Dispatch() DispatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch
}

func (s *State) AppendOutcome(o domain.Outcome) {
	s.mu.Lock()
	s.report = append(s.report, o)
	s.mu.Unlock()
}

// Report returns the in-memory outcomes in insertion order.
func (s *State) Report() []domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Outcome(nil), s.report...)
}

func (s *State) ClearReport() {
	s.mu.Lock()
	s.report = nil
	s.mu.Unlock()
}

// SetTargets replaces the uploaded recipient list.
func (s *State) SetTargets(handles []string) {
	s.mu.Lock()
	s.targets = append([]string(nil), handles...)
	s.mu.Unlock()
}

func (s *State) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

// TryStartContacts claims the contacts slot for a batch of total contacts.
func (s *State) TryStartContacts(jobID string, total int) bool {
	if !s.contactsRunning.CompareAndSwap(false, true) {
		return false
	}
	s.contactsStop.Store(false)
	s.mu.Lock()
	s.contacts.State = StateRunning
	s.contacts.Running = true
	s.contacts.JobID = jobID
	s.contacts.Current = 0
	s.contacts.Total = total
	s.contacts.Success = 0
	s.contacts.Failed = 0
	s.contacts.Completed = false
	s.contacts.Error = ""
	s.contacts.Text = "starting"
	s.mu.Unlock()
	return true
}

// UpdateContacts applies fn to the contacts progress under the lock.
func (s *State) UpdateContacts(fn func(*ContactsStatus)) {
	s.mu.Lock()
	fn(&s.contacts)
	s.mu.Unlock()
}

func (s *State) FinishContacts(state JobState, errMsg string) {
	s.mu.Lock()
	s.contacts.State = state
	s.contacts.Running = false
	s.contacts.Completed = state == StateCompleted || state == StateStopped
	s.contacts.Error = errMsg
	s.mu.Unlock()
	s.contactsRunning.Store(false)
}

func (s *State) ContactsRunning() bool { return s.contactsRunning.Load() }

func (s *State) RequestContactsStop() bool {
	s.contactsStop.Store(true)
	return s.contactsRunning.Load()
}

func (s *State) ContactsStopRequested() bool { return s.contactsStop.Load() }

func (s *State) Contacts() ContactsStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contacts
	c.FilteredCount = len(s.filtered)
	return c
}

// SetFilteredContacts stores the deduplicated batch from an upload.
func (s *State) SetFilteredContacts(batch []domain.Contact, duplicates, invalid int) {
	s.mu.Lock()
	s.filtered = append([]domain.Contact(nil), batch...)
	s.contacts.DuplicateCount = duplicates
	s.contacts.InvalidCount = invalid
	s.contacts.Completed = false
	s.contacts.Error = ""
	s.mu.Unlock()
}

func (s *State) FilteredContacts() []domain.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Contact(nil), s.filtered...)
}

// ClearContacts forgets the uploaded batch and resets the counters. It does
// not touch a running job's slot.
func (s *State) ClearContacts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filtered = nil
	running := s.contacts.Running
	st := s.contacts.State
	s.contacts = ContactsStatus{State: StateIdle}
	if running {
		s.contacts.Running = true
		s.contacts.State = st
	}
}

// LogTail returns up to n recent log lines, newest first.
func (s *State) LogTail(n int) []string {
	if s.Ring == nil {
		return nil
	}
	return s.Ring.Tail(n)
}
