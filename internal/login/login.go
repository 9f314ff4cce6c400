// Package login drives the phone + OTP sign-in of the web client.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/phone"
)

var ErrLoginFailed = errors.New("login failed")

type State string

const (
	Unauthenticated State = "UNAUTHENTICATED"
	PhoneSubmitted  State = "PHONE_SUBMITTED"
	OTPPending      State = "OTP_PENDING"
	Authenticated   State = "AUTHENTICATED"
	Failed          State = "LOGIN_FAILED"
)

// CodeSource hands the handshake the operator's OTP. session.Challenge
// implements it.
type CodeSource interface {
	Begin()
	Await(ctx context.Context) (string, error)
}

type Config struct {
	URL string
	// NavigationTimeout bounds loading the client.
	NavigationTimeout time.Duration
	// CheckTimeout is how long an existing session gets to show the chat
	// list before the phone form is used. Keep it well under LoginTimeout.
	CheckTimeout time.Duration
	// PromptTimeout bounds the wait for the OTP input after the phone is sent.
	PromptTimeout time.Duration
	// LoginTimeout bounds the wait for the chat list after the code is typed.
	LoginTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = eitaa.DefaultURL
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 15 * time.Second
	}
	if c.PromptTimeout <= 0 {
		c.PromptTimeout = 30 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 60 * time.Second
	}
	return c
}

type Handshake struct {
	cfg   Config
	codes CodeSource
	log   zerolog.Logger

	// OnState, if set, observes every transition.
	OnState func(State)
}

func New(cfg Config, codes CodeSource, log zerolog.Logger) *Handshake {
	return &Handshake{cfg: cfg.withDefaults(), codes: codes, log: log}
}

func (h *Handshake) transition(s State) {
	h.log.Debug().Str("login_state", string(s)).Msg("Login state")
	if h.OnState != nil {
		h.OnState(s)
	}
}

// Run signs page in with rawPhone unless it is already signed in. It blocks
// for the OTP for as long as ctx allows. A failure after the code was typed
// returns ErrLoginFailed and leaves the browser as it is.
func (h *Handshake) Run(ctx context.Context, page browser.Page, rawPhone string) error {
	h.transition(Unauthenticated)

	if err := page.Navigate(ctx, h.cfg.URL, h.cfg.NavigationTimeout); err != nil {
		h.transition(Failed)
		return fmt.Errorf("open %s: %w", h.cfg.URL, err)
	}

	if page.WaitVisible(ctx, eitaa.ChatList, h.cfg.CheckTimeout) == nil {
		h.log.Info().Msg("Account is already connected")
		h.transition(Authenticated)
		return nil
	}
	if err := ctx.Err(); err != nil {
		h.transition(Failed)
		return err
	}

	number := phone.ForLogin(rawPhone)
	h.log.Info().Str("phone", number).Msg("Login required, submitting phone number")
	if err := page.Fill(ctx, eitaa.PhoneInput, number, 10*time.Second); err != nil {
		h.transition(Failed)
		return fmt.Errorf("%w: enter phone number: %w", ErrLoginFailed, err)
	}
	if err := page.Press(ctx, browser.KeyEnter); err != nil {
		h.transition(Failed)
		return fmt.Errorf("%w: submit phone number: %w", ErrLoginFailed, err)
	}
	h.transition(PhoneSubmitted)

	if err := page.WaitVisible(ctx, eitaa.OTPInput, h.cfg.PromptTimeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			h.transition(Failed)
			return ctxErr
		}
		if page.IsVisible(ctx, eitaa.ChatList, time.Second) {
			h.transition(Authenticated)
			return nil
		}
		// The client occasionally renders the code field with other markup;
		// the code is typed into whatever holds focus, so keep going.
		h.log.Warn().Err(err).Msg("Code input not detected, waiting for the code anyway")
	}

	h.codes.Begin()
	h.transition(OTPPending)
	h.log.Info().Msg("Waiting for verification code")
	code, err := h.codes.Await(ctx)
	if err != nil {
		// Stopped or timed out while waiting; the status must not stay pending.
		h.transition(Failed)
		return err
	}
	h.log.Info().Msg("Verification code received")

	if err := page.TypeKeys(ctx, code); err != nil {
		h.transition(Failed)
		return fmt.Errorf("%w: type code: %w", ErrLoginFailed, err)
	}
	if err := page.WaitVisible(ctx, eitaa.ChatList, h.cfg.LoginTimeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			h.transition(Failed)
			return ctxErr
		}
		h.transition(Failed)
		return fmt.Errorf("%w: chat list did not appear: %w", ErrLoginFailed, err)
	}

	h.log.Info().Msg("Login completed")
	h.transition(Authenticated)
	return nil
}
