package dispatch

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eitaa-automation/internal/browser"
	"eitaa-automation/internal/browser/browsertest"
	"eitaa-automation/internal/discovery"
	"eitaa-automation/internal/domain"
	"eitaa-automation/internal/eitaa"
	"eitaa-automation/internal/pace"
	"eitaa-automation/internal/session"
)

type memRecorder struct {
	mu  sync.Mutex
	out []domain.Outcome
}

func (m *memRecorder) SaveOutcome(_ context.Context, o domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = append(m.out, o)
	return nil
}

type memFailures struct {
	lines []string
}

func (m *memFailures) Append(_ time.Time, handle, reason string) error {
	m.lines = append(m.lines, handle+" - "+reason)
	return nil
}

type harness struct {
	orch     *Orchestrator
	state    *session.State
	recorder *memRecorder
	failures *memFailures
	slept    []time.Duration
}

func newHarness() *harness {
	h := &harness{state: session.New(nil), recorder: &memRecorder{}, failures: &memFailures{}}
	h.orch = New(h.state, h.recorder, h.failures, zerolog.Nop())
	h.orch.Rand = rand.New(rand.NewPCG(7, 7))
	h.orch.Sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return ctx.Err()
	}
	return h
}

func TestAliceBobScenario(t *testing.T) {
	h := newHarness()
	page := &browsertest.Page{}

	rep, err := h.orch.Run(context.Background(), page, Job{
		ID:        "job-1",
		Source:    SpreadsheetSource{Handles: []string{"@alice", "@bob"}},
		Message:   "hello",
		OwnHandle: "bob",
		MinDelay:  1,
		MaxDelay:  1,
		Phone:     "+989123456789",
	})
	require.NoError(t, err)

	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, 2, rep.Processed)
	assert.False(t, rep.Stopped)

	alice, bob := rep.Outcomes[0], rep.Outcomes[1]
	assert.Equal(t, "@alice", alice.RecipientID)
	assert.Equal(t, domain.StatusSuccess, alice.Status)
	assert.False(t, alice.Timestamp.IsZero())
	assert.Equal(t, domain.OpSpreadsheet, alice.OperationType)
	assert.Equal(t, "+989123456789", alice.PhoneContext)
	assert.Equal(t, "job-1", alice.JobID)

	assert.Equal(t, "@bob", bob.RecipientID)
	assert.Equal(t, domain.StatusSkipped, bob.Status)
	assert.Equal(t, domain.SelfSkipReason, bob.Detail)

	// One full second of pacing after alice.
	assert.Contains(t, h.slept, time.Second)
	assert.Equal(t, time.Second, h.slept[len(h.slept)-1])

	// The browser only ever saw alice.
	assert.Equal(t, []string{"", "@alice", ""}, page.Args(browsertest.OpFill, eitaa.SearchInput))
	assert.Equal(t, []string{"hello"}, page.Args(browsertest.OpFill, eitaa.ComposeBox))
	assert.Equal(t, []string{browser.KeyEnter}, page.Pressed())

	assert.Len(t, h.recorder.out, 2)
	assert.Len(t, h.state.Report(), 2)
	assert.Equal(t, 2, h.state.Dispatch().Processed)
}

func TestOwnHandleIsOnlyEverSkipped(t *testing.T) {
	h := newHarness()
	page := &browsertest.Page{}

	rep, err := h.orch.Run(context.Background(), page, Job{
		Source:    SpreadsheetSource{Handles: []string{"@Me", "@x", "me", "@ME"}},
		Message:   "m",
		OwnHandle: "@me",
		MinDelay:  0.1,
		MaxDelay:  0.2,
	})
	require.NoError(t, err)
	for _, o := range rep.Outcomes {
		if domain.SameHandle(o.RecipientID, "me") {
			assert.Equal(t, domain.StatusSkipped, o.Status)
		}
	}
	assert.Equal(t, 3, rep.Count(domain.StatusSkipped))
	assert.Equal(t, 1, rep.Count(domain.StatusSuccess))
}

func TestFailureIsIsolated(t *testing.T) {
	h := newHarness()
	h.orch.ScreenshotDir = "shots"
	ghost := eitaa.DirectEntry("@ghost")
	page := &browsertest.Page{Present: func(sel string) bool { return sel != ghost }}

	rep, err := h.orch.Run(context.Background(), page, Job{
		Source:   SpreadsheetSource{Handles: []string{"@ghost", "@alice"}},
		Message:  "hi",
		MinDelay: 1,
		MaxDelay: 2,
	})
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 2)

	failed := rep.Outcomes[0]
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Contains(t, failed.Detail, "user not found")
	assert.LessOrEqual(t, len([]rune(failed.Detail)), domain.MaxDetailRunes)
	assert.Equal(t, domain.StatusSuccess, rep.Outcomes[1].Status)

	require.Len(t, h.failures.lines, 1)
	assert.True(t, strings.HasPrefix(h.failures.lines[0], "@ghost - "))

	shots := page.CallsOf(browsertest.OpScreenshot)
	require.Len(t, shots, 1)
	assert.Contains(t, shots[0].Arg, "error_ghost_")
}

func TestStopAfterFirstRecipient(t *testing.T) {
	h := newHarness()
	page := &browsertest.Page{AfterCall: func(c browsertest.Call) {
		if c.Op == browsertest.OpPress {
			h.state.RequestStop()
		}
	}}

	rep, err := h.orch.Run(context.Background(), page, Job{
		Source:   SpreadsheetSource{Handles: []string{"@alice", "@bob", "@carol"}},
		Message:  "hi",
		MinDelay: 1,
		MaxDelay: 1,
	})
	require.NoError(t, err)
	assert.True(t, rep.Stopped)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, "@alice", rep.Outcomes[0].RecipientID)
	assert.Len(t, h.recorder.out, 1)
	assert.Equal(t, 3, rep.Total)
}

func TestCancelledContextLeavesNoRecord(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	page := &browsertest.Page{AfterCall: func(c browsertest.Call) {
		if c.Op == browsertest.OpWaitAttached {
			cancel()
		}
	}}

	rep, err := h.orch.Run(ctx, page, Job{
		Source:   SpreadsheetSource{Handles: []string{"@alice"}},
		Message:  "hi",
		MinDelay: 1,
		MaxDelay: 1,
	})
	require.NoError(t, err)
	assert.True(t, rep.Stopped)
	assert.Empty(t, rep.Outcomes)
}

func TestInvalidDelaysRejectedBeforeBrowser(t *testing.T) {
	for _, d := range [][2]float64{{5, 2}, {0, 2}, {-1, -1}} {
		h := newHarness()
		page := &browsertest.Page{}
		_, err := h.orch.Run(context.Background(), page, Job{
			Source:   SpreadsheetSource{Handles: []string{"@a"}},
			MinDelay: d[0],
			MaxDelay: d[1],
		})
		assert.ErrorIs(t, err, pace.ErrInvalidDelay)
		assert.Empty(t, page.Calls())
	}
}

func TestDelaysWithinRange(t *testing.T) {
	h := newHarness()
	handles := make([]string, 30)
	for i := range handles {
		handles[i] = "@u" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}

	_, err := h.orch.Run(context.Background(), &browsertest.Page{}, Job{
		Source:   SpreadsheetSource{Handles: handles},
		Message:  "m",
		MinDelay: 2,
		MaxDelay: 3,
	})
	require.NoError(t, err)

	var pauses []time.Duration
	for _, d := range h.slept {
		if d >= 2*time.Second {
			pauses = append(pauses, d)
		}
	}
	assert.Len(t, pauses, len(handles)-1)
	for _, d := range pauses {
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestGroupPrefixSource(t *testing.T) {
	h := newHarness()
	message := "#تحویل @alice @bob @alice"
	page := &browsertest.Page{
		Counts: map[string]int{eitaa.Bubbles(): 2},
		TextOf: func(sel string, _ int) (string, error) {
			switch sel {
			case eitaa.BubbleText(0):
				return "older", nil
			case eitaa.BubbleText(1):
				return message, nil
			}
			return "", browser.ErrElementNotFound
		},
	}
	finder := discovery.NewFinder(discovery.Config{}, zerolog.Nop())
	finder.Sleep = func(context.Context, time.Duration) error { return nil }

	rep, err := h.orch.Run(context.Background(), page, Job{
		Source:   GroupPrefixSource{Group: "g", Prefix: "#تحویل", Finder: finder},
		Message:  "بار آماده است",
		MinDelay: 1,
		MaxDelay: 1,
	})
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, "@alice", rep.Outcomes[0].RecipientID)
	assert.Equal(t, "@bob", rep.Outcomes[1].RecipientID)
	assert.Equal(t, domain.OpGroupPrefix, rep.Outcomes[0].OperationType)
	assert.Equal(t, []string{"بار آماده است\n##تحویل", "بار آماده است\n##تحویل"},
		page.Args(browsertest.OpFill, eitaa.ComposeBox))
}

func TestGroupWithoutUsernames(t *testing.T) {
	h := newHarness()
	page := &browsertest.Page{
		Counts: map[string]int{eitaa.Bubbles(): 1},
		TextOf: func(string, int) (string, error) { return "#k nothing here", nil },
	}
	finder := discovery.NewFinder(discovery.Config{}, zerolog.Nop())
	finder.Sleep = func(context.Context, time.Duration) error { return nil }

	_, err := h.orch.Run(context.Background(), page, Job{
		Source:   GroupPrefixSource{Group: "g", Prefix: "#k", Finder: finder},
		MinDelay: 1,
		MaxDelay: 1,
	})
	assert.ErrorIs(t, err, discovery.ErrNoUsernames)
}

func TestContentTruncated(t *testing.T) {
	h := newHarness()
	long := strings.Repeat("س", 800)
	rep, err := h.orch.Run(context.Background(), &browsertest.Page{}, Job{
		Source:   SpreadsheetSource{Handles: []string{"a"}},
		Message:  long,
		MinDelay: 1,
		MaxDelay: 1,
	})
	require.NoError(t, err)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, "@a", rep.Outcomes[0].RecipientID)
	assert.Len(t, []rune(rep.Outcomes[0].Content), domain.MaxContentRunes)
}

func TestSpreadsheetSource(t *testing.T) {
	got, err := SpreadsheetSource{Handles: []string{" alice", "", "@bob", "  ", "@"}}.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "@bob"}, got)

	_, err = SpreadsheetSource{}.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestCompose(t *testing.T) {
	assert.Equal(t, "base\n#key", GroupPrefixSource{Prefix: " key "}.Compose("base")("@x"))
	assert.Equal(t, "base", SpreadsheetSource{}.Compose("base")("@x"))
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	l := NewLimiter(30)
	require.NotNil(t, l)
	assert.InDelta(t, 0.5, float64(l.Limit()), 1e-9)
}

func TestLimiterIsConsulted(t *testing.T) {
	h := newHarness()
	h.orch.Limiter = NewLimiter(600000)
	rep, err := h.orch.Run(context.Background(), &browsertest.Page{}, Job{
		Source:   SpreadsheetSource{Handles: []string{"@a", "@b"}},
		Message:  "m",
		MinDelay: 1,
		MaxDelay: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Count(domain.StatusSuccess))
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "ghost", fileSafe("@ghost"))
	assert.Equal(t, "علی_1", fileSafe("@علی_1/../"))
}
