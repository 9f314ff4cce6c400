package contacts

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/pace"
)

var ErrEmptyBatch = errors.New("no new contacts to add")

// Recorder remembers added contacts so later uploads skip them.
type Recorder interface {
	AddContact(ctx context.Context, c domain.Contact, addedBy string) (bool, error)
}

type Config struct {
	MinDelay  float64
	MaxDelay  float64
	Keystroke time.Duration
	Settle    time.Duration
}

// Progress is reported after every contact.
type Progress struct {
	Current int
	Total   int
	Success int
	Failed  int
	Contact domain.Contact
	OK      bool
}

type Summary struct {
	Total   int
	Success int
	Failed  int
	Stopped bool
}

type Importer struct {
	cfg      Config
	recorder Recorder
	log      zerolog.Logger

	// StopRequested is polled between contacts.
	StopRequested func() bool

	Sleep pace.SleepFunc
	Rand  *rand.Rand
}

func NewImporter(cfg Config, recorder Recorder, log zerolog.Logger) *Importer {
	if cfg.MinDelay <= 0 || cfg.MaxDelay < cfg.MinDelay {
		cfg.MinDelay, cfg.MaxDelay = 2, 4
	}
	if cfg.Keystroke <= 0 {
		cfg.Keystroke = 100 * time.Millisecond
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	return &Importer{
		cfg:           cfg,
		recorder:      recorder,
		log:           log,
		StopRequested: func() bool { return false },
		Sleep:         pace.Sleep,
	}
}

// Run adds batch to the address book one contact at a time. addedBy is the
// operator's phone, stored with each added contact. The returned error is
// only for failures that stop the whole job.
func (im *Importer) Run(ctx context.Context, page browser.Page, batch []domain.Contact, addedBy string, progress func(Progress)) (Summary, error) {
	sum := Summary{Total: len(batch)}
	if len(batch) == 0 {
		return sum, ErrEmptyBatch
	}
	if err := EnsureContactsPage(ctx, page, im.Sleep, im.log); err != nil {
		return sum, err
	}

	for i, c := range batch {
		if im.StopRequested() || ctx.Err() != nil {
			im.log.Info().Int("done", i).Msg("Contacts import stopped")
			sum.Stopped = true
			break
		}
		im.log.Info().Msgf("Adding contact %d/%d: %s (%s)", i+1, sum.Total, c.Name, c.Phone)

		err := im.add(ctx, page, c)
		if err != nil && ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		if err != nil {
			sum.Failed++
			im.log.Warn().Str("phone", c.Phone).Str("reason", domain.Truncate(err.Error(), domain.MaxDetailRunes)).Msg("Add contact failed")
			im.recover(ctx, page)
		} else {
			sum.Success++
			if im.recorder != nil {
				if _, err := im.recorder.AddContact(context.WithoutCancel(ctx), c, addedBy); err != nil {
					im.log.Error().Err(err).Str("phone", c.Phone).Msg("Failed to record contact")
				}
			}
		}

		if progress != nil {
			progress(Progress{Current: i + 1, Total: sum.Total, Success: sum.Success, Failed: sum.Failed, Contact: c, OK: err == nil})
		}

		if i < len(batch)-1 {
			d := pace.Uniform(im.Rand, im.cfg.MinDelay, im.cfg.MaxDelay)
			if err := im.Sleep(ctx, d); err != nil {
				sum.Stopped = true
				break
			}
		}
	}

	im.log.Info().Int("success", sum.Success).Int("failed", sum.Failed).Bool("stopped", sum.Stopped).Msg("Contacts import finished")
	return sum, nil
}

func (im *Importer) add(ctx context.Context, page browser.Page, c domain.Contact) error {
	if err := page.WaitVisible(ctx, eitaa.AddContactButton, 3*time.Second); err != nil {
		return fmt.Errorf("add button: %w", err)
	}
	if err := page.Click(ctx, eitaa.AddContactButton, 2*time.Second); err != nil {
		return fmt.Errorf("add button: %w", err)
	}
	if err := page.Fill(ctx, eitaa.ContactNameField, c.Name, 5*time.Second); err != nil {
		return fmt.Errorf("name field: %w", err)
	}
	if err := im.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := page.Fill(ctx, eitaa.ContactPhoneField, "", 5*time.Second); err != nil {
		return fmt.Errorf("phone field: %w", err)
	}
	if err := page.TypeSlow(ctx, eitaa.ContactPhoneField, FormatPhone(c.Phone), im.cfg.Keystroke); err != nil {
		return fmt.Errorf("phone field: %w", err)
	}
	if err := im.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := page.Click(ctx, eitaa.ContactSubmit, 2*time.Second); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := im.Sleep(ctx, im.cfg.Settle); err != nil {
		return err
	}
	// Close whatever the client left open, even after a success.
	if err := page.Press(ctx, browser.KeyEscape); err != nil {
		return fmt.Errorf("close form: %w", err)
	}
	return im.Sleep(ctx, time.Second)
}

// recover presses Escape a few times to dismiss a stuck dialog.
func (im *Importer) recover(ctx context.Context, page browser.Page) {
	for range 3 {
		_ = page.Press(ctx, browser.KeyEscape)
		if im.Sleep(ctx, 500*time.Millisecond) != nil {
			return
		}
	}
}
