// Package dispatch sends a direct message to each recipient of a job, one at
// a time, with randomized pauses and a cooperative stop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/pace"
)

var ErrNoRecipients = errors.New("no recipients")

const sentDetail = "sent successfully"

// Tracker receives live progress. session.State implements it.
type Tracker interface {
	StopRequested() bool
	AppendOutcome(o domain.Outcome)
	SetStep(step string)
	SetProgress(processed, total int)
}

// Recorder is the durable outcome log.
type Recorder interface {
	SaveOutcome(ctx context.Context, o domain.Outcome) error
}

// FailureLog is the plain-text audit of failed sends.
type FailureLog interface {
	Append(at time.Time, handle, reason string) error
}

type Job struct {
	ID        string
	Source    Source
	Message   string
	OwnHandle string
	// MinDelay and MaxDelay bound the pause between recipients, in seconds.
	MinDelay float64
	MaxDelay float64
	// Phone is the operator's number, stored with every outcome.
	Phone string
}

type Report struct {
	JobID     string
	Total     int
	Processed int
	Stopped   bool
	Outcomes  []domain.Outcome
}

// Count returns how many outcomes have status s.
func (r Report) Count(s domain.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	tracker  Tracker
	recorder Recorder
	failures FailureLog
	log      zerolog.Logger

	// Limiter, if set, caps the send rate on top of the random pauses.
	Limiter *rate.Limiter
	// ScreenshotDir, if set, receives a PNG for every failed send.
	ScreenshotDir string

	Sleep pace.SleepFunc
	Rand  *rand.Rand
	Now   func() time.Time
}

// New builds an orchestrator. recorder and failures may be nil.
func New(tracker Tracker, recorder Recorder, failures FailureLog, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		tracker:  tracker,
		recorder: recorder,
		failures: failures,
		log:      log,
		Sleep:    pace.Sleep,
		Now:      time.Now,
	}
}

// NewLimiter returns a limiter allowing perMinute sends a minute, or nil when
// perMinute is not positive.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Run resolves the job's recipients and processes them in order. Errors
// returned are stage errors (invalid job, recipients could not be resolved);
// per-recipient failures are outcomes in the report.
func (o *Orchestrator) Run(ctx context.Context, page browser.Page, job Job) (Report, error) {
	rep := Report{JobID: job.ID}
	if job.Source == nil {
		return rep, fmt.Errorf("%w: job has no source", ErrNoRecipients)
	}
	if err := pace.ValidateDelays(job.MinDelay, job.MaxDelay); err != nil {
		return rep, err
	}

	o.tracker.SetStep("resolving recipients")
	recipients, err := job.Source.Resolve(ctx, page)
	if err != nil {
		return rep, err
	}
	rep.Total = len(recipients)
	o.tracker.SetProgress(0, rep.Total)

	build := job.Source.Compose(job.Message)
	log := o.log.With().Str("job_id", job.ID).Str("operation", string(job.Source.Operation())).Logger()
	log.Info().Int("recipients", rep.Total).Msg("Dispatch started")

	for i, handle := range recipients {
		if o.tracker.StopRequested() || ctx.Err() != nil {
			log.Info().Int("processed", rep.Processed).Msg("Stop requested")
			rep.Stopped = true
			break
		}
		o.tracker.SetStep(fmt.Sprintf("sending %d/%d: %s", i+1, rep.Total, handle))
		text := build(handle)

		if domain.SameHandle(handle, job.OwnHandle) {
			log.Info().Str("recipient", handle).Msg("Skipping operator's own handle")
			o.record(ctx, &rep, job, domain.Outcome{
				RecipientID: handle,
				Status:      domain.StatusSkipped,
				Detail:      domain.SelfSkipReason,
				Content:     text,
			})
			continue
		}

		if o.Limiter != nil {
			if err := o.Limiter.Wait(ctx); err != nil {
				rep.Stopped = true
				break
			}
		}

		out := domain.Outcome{RecipientID: handle, Content: text}
		if err := o.send(ctx, page, handle, text); err != nil {
			if ctx.Err() != nil {
				// Interrupted by shutdown, not a failure of this recipient.
				rep.Stopped = true
				break
			}
			out.Status = domain.StatusFailed
			out.Detail = domain.Truncate(err.Error(), domain.MaxDetailRunes)
			log.Warn().Str("recipient", handle).Str("reason", out.Detail).Msg("Send failed")
			o.onFailure(ctx, page, handle, out.Detail)
		} else {
			out.Status = domain.StatusSuccess
			out.Detail = sentDetail
			log.Info().Str("recipient", handle).Msg("Message sent")
			o.clearSearch(ctx, page)
		}
		o.record(ctx, &rep, job, out)

		if i < len(recipients)-1 {
			d := pace.Uniform(o.Rand, job.MinDelay, job.MaxDelay)
			log.Debug().Dur("delay", d).Msg("Pausing before next recipient")
			if err := o.Sleep(ctx, d); err != nil {
				rep.Stopped = true
				break
			}
		}
	}

	log.Info().
		Int("processed", rep.Processed).
		Int("success", rep.Count(domain.StatusSuccess)).
		Int("failed", rep.Count(domain.StatusFailed)).
		Int("skipped", rep.Count(domain.StatusSkipped)).
		Bool("stopped", rep.Stopped).
		Msg("Dispatch finished")
	return rep, nil
}

// send opens the direct chat with handle through the search box and sends text.
func (o *Orchestrator) send(ctx context.Context, page browser.Page, handle, text string) error {
	if err := page.Click(ctx, eitaa.SearchInput, 5*time.Second); err != nil {
		return fmt.Errorf("search box: %w", err)
	}
	if err := page.Fill(ctx, eitaa.SearchInput, "", 3*time.Second); err != nil {
		return fmt.Errorf("clear search: %w", err)
	}
	if err := o.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := page.Fill(ctx, eitaa.SearchInput, handle, 5*time.Second); err != nil {
		return fmt.Errorf("type handle: %w", err)
	}
	if err := o.Sleep(ctx, time.Second); err != nil {
		return err
	}

	// Attachment can precede layout, so wait for both before clicking.
	entry := eitaa.DirectEntry(handle)
	if err := page.WaitAttached(ctx, entry, 10*time.Second); err != nil {
		return fmt.Errorf("user not found in search: %w", err)
	}
	if err := page.WaitVisible(ctx, entry, 10*time.Second); err != nil {
		return fmt.Errorf("user not visible in search: %w", err)
	}
	if err := page.Click(ctx, entry, 5*time.Second); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	if err := page.WaitVisible(ctx, eitaa.ComposeBox, 10*time.Second); err != nil {
		return fmt.Errorf("compose box: %w", err)
	}
	if err := page.Fill(ctx, eitaa.ComposeBox, text, 10*time.Second); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := page.Press(ctx, browser.KeyEnter); err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	return nil
}

// clearSearch empties the search box after a send. Failures are ignored.
func (o *Orchestrator) clearSearch(ctx context.Context, page browser.Page) {
	if !page.IsVisible(ctx, eitaa.SearchInput, time.Second) {
		return
	}
	if page.Click(ctx, eitaa.SearchInput, 3*time.Second) != nil {
		return
	}
	if page.Fill(ctx, eitaa.SearchInput, "", 3*time.Second) != nil {
		return
	}
	_ = o.Sleep(ctx, 200*time.Millisecond)
}

func (o *Orchestrator) record(ctx context.Context, rep *Report, job Job, out domain.Outcome) {
	out.OperationType = job.Source.Operation()
	out.Content = domain.Truncate(out.Content, domain.MaxContentRunes)
	out.Timestamp = o.Now()
	out.PhoneContext = job.Phone
	out.JobID = job.ID

	rep.Outcomes = append(rep.Outcomes, out)
	rep.Processed++
	o.tracker.AppendOutcome(out)
	o.tracker.SetProgress(rep.Processed, rep.Total)

	if o.recorder != nil {
		// The outcome must reach the log even if the job is being cancelled.
		if err := o.recorder.SaveOutcome(context.WithoutCancel(ctx), out); err != nil {
			o.log.Error().Err(err).Str("recipient", out.RecipientID).Msg("Failed to save outcome")
		}
	}
}

func (o *Orchestrator) onFailure(ctx context.Context, page browser.Page, handle, reason string) {
	now := o.Now()
	if o.failures != nil {
		if err := o.failures.Append(now, handle, reason); err != nil {
			o.log.Error().Err(err).Msg("Failed to append to failed DMs log")
		}
	}
	if o.ScreenshotDir == "" || ctx.Err() != nil {
		return
	}
	name := fmt.Sprintf("error_%s_%s.png", fileSafe(handle), now.Format("20060102_150405"))
	path := filepath.Join(o.ScreenshotDir, name)
	if err := page.Screenshot(ctx, path); err != nil {
		o.log.Debug().Err(err).Msg("Screenshot failed")
		return
	}
	o.log.Info().Str("path", path).Msg("Saved failure screenshot")
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

func fileSafe(s string) string {
	return unsafeChars.ReplaceAllString(s, "")
}
