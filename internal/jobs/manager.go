// Package jobs runs the dispatch and contacts jobs in the background against
// the one shared browser page.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/contacts"
	"eitaa-automation/internal/discovery"
	"eitaa-automation/internal/dispatch"
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/login"
	"eitaa-automation/internal/pace"
	"eitaa-automation/internal/report"
	"eitaa-automation/internal/session"
	"eitaa-automation/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	ModeGroupPrefix = "group_prefix"
	ModeSpreadsheet = "spreadsheet"
	ModeLoginOnly   = "login_only"
)

// DispatchRequest is what the operator submits to start a dispatch job.
type DispatchRequest struct {
	Phone     string
	Mode      string
	Group     string
	Prefix    string
	Message   string
	OwnHandle string
	// MinDelay and MaxDelay are seconds; zero takes the configured default.
	MinDelay float64
	MaxDelay float64
}

type Options struct {
	Login     login.Config
	Discovery discovery.Config
	Contacts  contacts.Config

	DefaultMinDelay   float64
	DefaultMaxDelay   float64
	MessagesPerMinute int
	ScreenshotDir     string
	// OTPTimeout bounds a login's wait for the code. Zero waits until the
	// job is stopped.
	OTPTimeout time.Duration
}

type Manager struct {
	opts     Options
	state    *session.State
	browser  browser.Provider
	store    store.Repository
	failures *report.FailedLog
	log      zerolog.Logger

	// Sleep replaces real pauses in every job step; tests make it instant.
	Sleep pace.SleepFunc

	// pageMu serializes the browser phases of the two job kinds.
	pageMu sync.Mutex

	mu             sync.Mutex
	dispatchCancel context.CancelFunc
	contactsCancel context.CancelFunc

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a manager. repo and failures may be nil.
func New(opts Options, state *session.State, provider browser.Provider, repo store.Repository, failures *report.FailedLog, log zerolog.Logger) *Manager {
	if opts.DefaultMinDelay <= 0 || opts.DefaultMaxDelay < opts.DefaultMinDelay {
		opts.DefaultMinDelay, opts.DefaultMaxDelay = 7, 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:       opts,
		state:      state,
		browser:    provider,
		store:      repo,
		failures:   failures,
		log:        log,
		Sleep:      pace.Sleep,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

func (m *Manager) State() *session.State { return m.state }

func (r *DispatchRequest) normalize(defMin, defMax float64) error {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Mode = strings.TrimSpace(r.Mode)
	r.Group = strings.TrimSpace(r.Group)
	r.Prefix = strings.TrimSpace(r.Prefix)
	r.OwnHandle = strings.TrimSpace(r.OwnHandle)

	if r.Phone == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	switch r.Mode {
	case ModeGroupPrefix:
		if r.Group == "" || r.Prefix == "" {
			return fmt.Errorf("%w: group name and prefix are required", ErrInvalidRequest)
		}
		if strings.TrimSpace(r.Message) == "" {
			return fmt.Errorf("%w: message is required", ErrInvalidRequest)
		}
	case ModeSpreadsheet:
		if strings.TrimSpace(r.Message) == "" {
			return fmt.Errorf("%w: message is required", ErrInvalidRequest)
		}
	case ModeLoginOnly:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}

	if r.MinDelay == 0 && r.MaxDelay == 0 {
		r.MinDelay, r.MaxDelay = defMin, defMax
	}
	if err := pace.ValidateDelays(r.MinDelay, r.MaxDelay); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// StartDispatch validates req and launches the dispatch job. It returns
// session.ErrAlreadyRunning while another dispatch job is in flight.
func (m *Manager) StartDispatch(req DispatchRequest) (string, error) {
	if err := req.normalize(m.opts.DefaultMinDelay, m.opts.DefaultMaxDelay); err != nil {
		return "", err
	}
	var targets []string
	if req.Mode == ModeSpreadsheet {
		targets = m.state.Targets()
		if len(targets) == 0 {
			return "", fmt.Errorf("%w: no recipient list uploaded", ErrInvalidRequest)
		}
	}

	jobID := uuid.NewString()
	if !m.state.TryStartDispatch(jobID, req.Mode) {
		return "", session.ErrAlreadyRunning
	}
	// The in-memory report holds the current job only.
	m.state.ClearReport()

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.mu.Lock()
	m.dispatchCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runDispatch(ctx, cancel, jobID, req, targets)
	return jobID, nil
}

func (m *Manager) runDispatch(ctx context.Context, cancel context.CancelFunc, jobID string, req DispatchRequest, targets []string) {
	log := m.log.With().Str("job", "dispatch").Str("job_id", jobID).Logger()
	final, errMsg := session.StateFailed, ""

	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Dispatch job crashed")
			final, errMsg = session.StateFailed, fmt.Sprint(r)
		}
		cancel()
		m.mu.Lock()
		m.dispatchCancel = nil
		m.mu.Unlock()
		m.state.FinishDispatch(final, domain.Truncate(errMsg, domain.MaxContentRunes))
		log.Info().Str("state", string(final)).Msg("Dispatch job finished")
	}()

	m.state.SetStep("waiting for the browser")
	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	if m.state.StopRequested() || ctx.Err() != nil {
		final = session.StateStopped
		return
	}

	page, err := m.signIn(ctx, req.Phone, log, m.state.SetStep)
	if err != nil {
		final, errMsg = m.failure(ctx, m.state.StopRequested, err)
		log.Error().Err(err).Msg("Login did not complete")
		return
	}
	if req.Mode == ModeLoginOnly {
		m.state.SetStep("logged in")
		final = session.StateCompleted
		return
	}

	job := dispatch.Job{
		ID:        jobID,
		Message:   req.Message,
		OwnHandle: req.OwnHandle,
		MinDelay:  req.MinDelay,
		MaxDelay:  req.MaxDelay,
		Phone:     req.Phone,
	}
	switch req.Mode {
	case ModeGroupPrefix:
		finder := discovery.NewFinder(m.opts.Discovery, log)
		finder.Sleep = m.Sleep
		job.Source = dispatch.GroupPrefixSource{Group: req.Group, Prefix: req.Prefix, Finder: finder}
	case ModeSpreadsheet:
		job.Source = dispatch.SpreadsheetSource{Handles: targets}
	}

	var recorder dispatch.Recorder
	if m.store != nil {
		recorder = m.store
	}
	var failures dispatch.FailureLog
	if m.failures != nil {
		failures = m.failures
	}
	orch := dispatch.New(m.state, recorder, failures, log)
	orch.Limiter = dispatch.NewLimiter(m.opts.MessagesPerMinute)
	orch.ScreenshotDir = m.opts.ScreenshotDir
	orch.Sleep = m.Sleep

	rep, err := orch.Run(ctx, page, job)
	if err != nil {
		final, errMsg = m.failure(ctx, m.state.StopRequested, err)
		log.Error().Err(err).Msg("Dispatch aborted")
		return
	}

	log.Info().
		Int("success", rep.Count(domain.StatusSuccess)).
		Int("failed", rep.Count(domain.StatusFailed)).
		Int("skipped", rep.Count(domain.StatusSkipped)).
		Msg("Dispatch summary")
	if rep.Stopped {
		final = session.StateStopped
		m.state.SetStep("stopped")
		return
	}
	final = session.StateCompleted
	m.state.SetStep("completed")
}

// signIn acquires the page and runs the login handshake through the shared
// OTP challenge.
const sessionCheckTimeout = 2 * time.Second

func (m *Manager) signIn(ctx context.Context, rawPhone string, log zerolog.Logger, step func(string)) (browser.Page, error) {
	step("starting the browser")
	page, err := m.browser.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	if m.browser.Authenticated() && page.IsVisible(ctx, eitaa.ChatList, sessionCheckTimeout) {
		log.Info().Msg("Reusing logged-in session")
		m.state.SetLoginState(string(login.Authenticated))
		return page, nil
	}

	step("logging in")
	hs := login.New(m.opts.Login, otpSource{m}, log)
	hs.OnState = func(s login.State) {
		m.state.SetLoginState(string(s))
		if s == login.OTPPending {
			step("waiting for the verification code")
		}
	}
	if err := hs.Run(ctx, page, rawPhone); err != nil {
		m.browser.SetAuthenticated(false)
		return nil, err
	}
	m.browser.SetAuthenticated(true)
	return page, nil
}

// otpSource applies the configured OTP timeout on top of the job context.
type otpSource struct{ m *Manager }

func (o otpSource) Begin() { o.m.state.OTP.Begin() }

func (o otpSource) Await(ctx context.Context) (string, error) {
	if o.m.opts.OTPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.m.opts.OTPTimeout)
		defer cancel()
	}
	return o.m.state.OTP.Await(ctx)
}

// failure maps a job-ending error to the terminal state: a stop or shutdown
// is STOPPED, anything else FAILED.
func (m *Manager) failure(ctx context.Context, stopped func() bool, err error) (session.JobState, string) {
	if stopped() || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		return session.StateStopped, ""
	}
	return session.StateFailed, err.Error()
}

// SubmitOTP hands code to the login waiting for it.
func (m *Manager) SubmitOTP(code string) error {
	if err := m.state.OTP.Submit(code); err != nil {
		return err
	}
	m.log.Info().Msg("Verification code submitted")
	return nil
}

// Stop asks the dispatch job to stop at the next recipient. A login blocked
// on the code is cancelled outright since it has no loop boundary to reach.
func (m *Manager) Stop() bool {
	running := m.state.RequestStop()
	if running {
		m.log.Info().Msg("Stop requested")
	}
	if m.state.OTP.Pending() {
		m.mu.Lock()
		if m.dispatchCancel != nil {
			m.dispatchCancel()
		}
		m.mu.Unlock()
	}
	return running
}

func (m *Manager) Status() session.DispatchStatus {
	return m.state.Dispatch()
}

// LoadTargets replaces the recipient list for the spreadsheet mode and
// clears the in-memory report of the previous run.
func (m *Manager) LoadTargets(handles []string) int {
	m.state.SetTargets(handles)
	m.state.ClearReport()
	m.log.Info().Int("count", len(handles)).Msg("Recipient list loaded")
	return len(handles)
}

// ContactsUpload summarizes a contacts sheet after validation and dedup.
type ContactsUpload struct {
	Total      int                 `json:"total_count"`
	New        int                 `json:"new_count"`
	Duplicates int                 `json:"duplicate_count"`
	Invalid    []domain.InvalidRow `json:"invalid_rows"`
}

// LoadContacts deduplicates valid against the durable log and keeps the new
// ones as the batch for the next contacts job.
func (m *Manager) LoadContacts(ctx context.Context, valid []domain.Contact, invalid []domain.InvalidRow) (ContactsUpload, error) {
	if m.state.ContactsRunning() {
		return ContactsUpload{}, session.ErrAlreadyRunning
	}
	for _, r := range invalid {
		m.log.Warn().Int("row", r.Row).Str("reason", r.Reason).Msg("Invalid contact row")
	}

	fresh, dup := valid, 0
	if m.store != nil {
		var err error
		fresh, dup, err = m.store.FilterNewContacts(ctx, valid)
		if err != nil {
			return ContactsUpload{}, fmt.Errorf("filter contacts: %w", err)
		}
	}
	m.state.SetFilteredContacts(fresh, dup, len(invalid))
	m.log.Info().Int("new", len(fresh)).Int("duplicates", dup).Int("invalid", len(invalid)).Msg("Contacts list loaded")

	return ContactsUpload{
		Total:      len(valid) + len(invalid),
		New:        len(fresh),
		Duplicates: dup,
		Invalid:    invalid,
	}, nil
}

// StartContacts launches the contacts job over the loaded batch.
func (m *Manager) StartContacts(rawPhone string) (string, error) {
	rawPhone = strings.TrimSpace(rawPhone)
	if rawPhone == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	if m.state.ContactsRunning() {
		return "", session.ErrAlreadyRunning
	}
	batch := m.state.FilteredContacts()
	if len(batch) == 0 {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, contacts.ErrEmptyBatch)
	}

	jobID := uuid.NewString()
	if !m.state.TryStartContacts(jobID, len(batch)) {
		return "", session.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	m.mu.Lock()
	m.contactsCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runContacts(ctx, cancel, jobID, rawPhone, batch)
	return jobID, nil
}

func (m *Manager) runContacts(ctx context.Context, cancel context.CancelFunc, jobID, rawPhone string, batch []domain.Contact) {
	log := m.log.With().Str("job", "contacts").Str("job_id", jobID).Logger()
	final, errMsg := session.StateFailed, ""
	setText := func(s string) {
		m.state.UpdateContacts(func(c *session.ContactsStatus) { c.Text = s })
	}

	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Contacts job crashed")
			final, errMsg = session.StateFailed, fmt.Sprint(r)
		}
		cancel()
		m.mu.Lock()
		m.contactsCancel = nil
		m.mu.Unlock()
		m.state.FinishContacts(final, domain.Truncate(errMsg, domain.MaxContentRunes))
		log.Info().Str("state", string(final)).Msg("Contacts job finished")
	}()

	setText("waiting for the browser")
	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	if m.state.ContactsStopRequested() || ctx.Err() != nil {
		final = session.StateStopped
		return
	}

	page, err := m.signIn(ctx, rawPhone, log, setText)
	if err != nil {
		final, errMsg = m.failure(ctx, m.state.ContactsStopRequested, err)
		log.Error().Err(err).Msg("Login did not complete")
		return
	}

	setText("opening contacts")
	im := contacts.NewImporter(m.opts.Contacts, m.contactRecorder(), log)
	im.Sleep = m.Sleep
	im.StopRequested = m.state.ContactsStopRequested

	addedBy := rawPhone
	if c, err := contacts.Normalize(rawPhone); err == nil {
		addedBy = c
	}
	sum, err := im.Run(ctx, page, batch, addedBy, func(p contacts.Progress) {
		m.state.UpdateContacts(func(c *session.ContactsStatus) {
			c.Current = p.Current
			c.Total = p.Total
			c.Success = p.Success
			c.Failed = p.Failed
			c.Text = fmt.Sprintf("%d/%d: %s", p.Current, p.Total, p.Contact.Name)
		})
	})
	if err != nil {
		final, errMsg = m.failure(ctx, m.state.ContactsStopRequested, err)
		log.Error().Err(err).Msg("Contacts import aborted")
		setText("failed")
		return
	}

	if sum.Stopped {
		final = session.StateStopped
		setText("stopped")
		return
	}
	final = session.StateCompleted
	setText(fmt.Sprintf("done: %d added, %d failed", sum.Success, sum.Failed))
	// Added contacts are in the log now; the batch is spent.
	m.state.SetFilteredContacts(nil, 0, 0)
}

func (m *Manager) contactRecorder() contacts.Recorder {
	if m.store == nil {
		return nil
	}
	return m.store
}

// StopContacts asks the contacts job to stop after the current contact.
func (m *Manager) StopContacts() bool {
	running := m.state.RequestContactsStop()
	if running {
		m.log.Info().Msg("Contacts stop requested")
	}
	if m.state.OTP.Pending() {
		m.mu.Lock()
		if m.contactsCancel != nil {
			m.contactsCancel()
		}
		m.mu.Unlock()
	}
	return running
}

func (m *Manager) ContactsStatus() session.ContactsStatus {
	return m.state.Contacts()
}

func (m *Manager) ClearContacts() {
	m.state.ClearContacts()
	m.log.Info().Msg("Contacts list cleared")
}

func (m *Manager) ClearReport() {
	m.state.ClearReport()
	m.log.Info().Msg("Dispatch report cleared")
}

// Report returns the outcomes to show or export: the durable log first, the
// in-memory report when the log is empty.
func (m *Manager) Report(ctx context.Context) ([]domain.Outcome, string) {
	memory := m.state.Report()
	if m.store == nil {
		return memory, "memory"
	}
	rows, err := m.store.AllReports(ctx)
	if err == nil && len(rows) > 0 {
		return rows, "database"
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("Reading stored reports failed")
	}
	return memory, "memory"
}

// Logout closes the browser. The profile directory is kept, so the next
// login may still find the account connected.
func (m *Manager) Logout() error {
	if m.state.DispatchRunning() || m.state.ContactsRunning() {
		return session.ErrAlreadyRunning
	}
	m.pageMu.Lock()
	defer m.pageMu.Unlock()
	m.browser.SetAuthenticated(false)
	if err := m.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	m.log.Info().Msg("Browser session closed")
	return nil
}

// Shutdown cancels running jobs, waits for them up to ctx and closes the
// browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.state.RequestStop()
	m.state.RequestContactsStop()
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn().Msg("Jobs did not finish before shutdown deadline")
	}
	return m.browser.Close()
}
