package dispatch

import (
	"context"
	"fmt"
	"strings"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/discovery"
	"eitaa-automation/internal/domain"
)

// Builder composes the message sent to one recipient.
type Builder func(recipient string) string

// Source is where a job's recipients come from. It is a closed set:
// GroupPrefixSource or SpreadsheetSource.
type Source interface {
	Operation() domain.OperationType
	// Resolve produces the ordered recipient handles, using the page if needed.
	Resolve(ctx context.Context, page browser.Page) ([]string, error)
	// Compose returns the builder for base text.
	Compose(base string) Builder

	sealed()
}

// GroupPrefixSource takes the recipients from the newest message in Group
// that starts with Prefix.
type GroupPrefixSource struct {
	Group  string
	Prefix string
	Finder *discovery.Finder
}

func (GroupPrefixSource) Operation() domain.OperationType { return domain.OpGroupPrefix }

func (s GroupPrefixSource) Resolve(ctx context.Context, page browser.Page) ([]string, error) {
	if s.Finder == nil {
		return nil, fmt.Errorf("group source has no finder")
	}
	text, err := s.Finder.FindTargetMessage(ctx, page, s.Group, s.Prefix)
	if err != nil {
		return nil, err
	}
	handles := discovery.ExtractUsernames(text)
	if len(handles) == 0 {
		return nil, discovery.ErrNoUsernames
	}
	return handles, nil
}

// Compose appends the prefix as a hashtag on its own line.
func (s GroupPrefixSource) Compose(base string) Builder {
	text := base + "\n#" + strings.TrimSpace(s.Prefix)
	return func(string) string { return text }
}

func (GroupPrefixSource) sealed() {}

// SpreadsheetSource sends to an uploaded list, in row order.
type SpreadsheetSource struct {
	Handles []string
}

func (SpreadsheetSource) Operation() domain.OperationType { return domain.OpSpreadsheet }

func (s SpreadsheetSource) Resolve(context.Context, browser.Page) ([]string, error) {
	out := make([]string, 0, len(s.Handles))
	for _, h := range s.Handles {
		if h = domain.AsHandle(h); h != "" && h != "@" {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}

// Compose sends base unchanged.
func (SpreadsheetSource) Compose(base string) Builder {
	return func(string) string { return base }
}

func (SpreadsheetSource) sealed() {}
