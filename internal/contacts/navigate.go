package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/pace"
)

var ErrNavigationStage = errors.New("cannot reach the contacts page")

// EnsureContactsPage brings the page to the contacts sidebar. It does nothing
// when the add-contact button is already showing.
func EnsureContactsPage(ctx context.Context, page browser.Page, sleep pace.SleepFunc, log zerolog.Logger) error {
	if page.IsVisible(ctx, eitaa.AddContactButton, time.Second) {
		log.Debug().Msg("Already on the contacts page")
		return nil
	}

	if page.IsVisible(ctx, eitaa.BackButton, time.Second) {
		if err := page.Click(ctx, eitaa.BackButton, 3*time.Second); err == nil {
			if err := sleep(ctx, 2*time.Second); err != nil {
				return err
			}
			if page.IsVisible(ctx, eitaa.AddContactButton, time.Second) {
				log.Info().Msg("Back on the contacts page")
				return nil
			}
		}
	}

	log.Info().Msg("Opening contacts through the menu")
	switch {
	case page.IsVisible(ctx, eitaa.MenuToggle, 4*time.Second):
		if err := page.Click(ctx, eitaa.MenuToggle, 3*time.Second); err != nil {
			return stage(ctx, "open menu", err)
		}
	case page.IsVisible(ctx, eitaa.MenuToggleAlt, time.Second):
		if err := page.Click(ctx, eitaa.MenuToggleAlt, 3*time.Second); err != nil {
			return stage(ctx, "open menu", err)
		}
	default:
		return stage(ctx, "open menu", browser.ErrElementNotFound)
	}
	if err := sleep(ctx, 2*time.Second); err != nil {
		return err
	}

	if err := page.WaitVisible(ctx, eitaa.ContactsMenuItem, 3*time.Second); err != nil {
		return stage(ctx, "contacts menu item", err)
	}
	if err := page.Click(ctx, eitaa.ContactsMenuItem, 2*time.Second); err != nil {
		return stage(ctx, "contacts menu item", err)
	}
	if err := sleep(ctx, 3*time.Second); err != nil {
		return err
	}

	if page.WaitVisible(ctx, eitaa.AddContactButton, 5*time.Second) == nil {
		log.Info().Msg("Contacts page opened")
		return nil
	}
	if err := sleep(ctx, 2*time.Second); err != nil {
		return err
	}
	if page.IsVisible(ctx, eitaa.AddContactButton, time.Second) {
		log.Info().Msg("Contacts page loaded")
		return nil
	}
	return stage(ctx, "add contact button", browser.ErrElementNotFound)
}

func stage(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", ErrNavigationStage, step, err)
}
