package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanchriswhite/recapture/internal/config"
	"github.com/bryanchriswhite/recapture/internal/window"
)

// fakeEnumerator returns one canned window list per call; the last list
// repeats once the script runs out.
type fakeEnumerator struct {
	calls  int
	rounds [][]window.Window
	err    error
}

func (f *fakeEnumerator) Windows() ([]window.Window, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rounds) == 0 {
		return nil, nil
	}
	i := f.calls - 1
	if i >= len(f.rounds) {
		i = len(f.rounds) - 1
	}
	return f.rounds[i], nil
}

func retroarchTarget(retries int) config.CaptureTarget {
	return config.CaptureTarget{
		Source:       "Game Capture",
		Executable:   "retroarch",
		TitlePattern: "RetroArch",
		RetryCount:   retries,
	}
}

func TestMatchFirstPass(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{
		{{ID: 42, Title: "RetroArch 1.9.0", App: "retroarch"}},
	}}

	win, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(3))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if win.ID != 42 {
		t.Errorf("window id = %d, want 42", win.ID)
	}
	if enum.calls != 1 {
		t.Errorf("enumerations = %d, want 1", enum.calls)
	}
}

func TestMatchRetriesUntilWindowAppears(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{
		nil,
		nil,
		{{ID: 42, Title: "RetroArch 1.9.0", App: "retroarch"}},
	}}

	win, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(5))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if win.ID != 42 {
		t.Errorf("window id = %d, want 42", win.ID)
	}
	if enum.calls != 3 {
		t.Errorf("enumerations = %d, want 3", enum.calls)
	}
}

func TestMatchExhaustsRetries(t *testing.T) {
	enum := &fakeEnumerator{}

	_, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(2))
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Match() error = %v, want ErrNoMatch", err)
	}
	if enum.calls != 3 { // initial pass + 2 retries
		t.Errorf("enumerations = %d, want 3", enum.calls)
	}
}

func TestMatchZeroRetriesSinglePass(t *testing.T) {
	enum := &fakeEnumerator{}

	_, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(0))
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Match() error = %v, want ErrNoMatch", err)
	}
	if enum.calls != 1 {
		t.Errorf("enumerations = %d, want 1", enum.calls)
	}
}

func TestMatchExecutableCaseInsensitive(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{
		{{ID: 7, Title: "RetroArch 1.9.0", App: "RetroArch"}},
	}}

	win, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if win.ID != 7 {
		t.Errorf("window id = %d, want 7", win.ID)
	}
}

func TestMatchTitleCaseSensitive(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{
		{{ID: 7, Title: "retroarch 1.9.0", App: "retroarch"}},
	}}

	_, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(0))
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Match() error = %v, want ErrNoMatch for lowercase title", err)
	}
}

func TestMatchTitleAnchored(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		title   string
		match   bool
	}{
		{"prefix_matches", "foo", "foobar", true},
		{"mid_title_does_not", "foo", "xfoobar", false},
		{"regex_matches_from_start", "RetroArch .*mGBA", "RetroArch 1.9.0 - mGBA", true},
		{"own_anchor_still_honored", "RetroArch$", "RetroArch 1.9.0", false},
		{"empty_pattern_matches_all", "", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enum := &fakeEnumerator{rounds: [][]window.Window{
				{{ID: 1, Title: tt.title, App: "app"}},
			}}
			target := config.CaptureTarget{Executable: "app", TitlePattern: tt.pattern}

			_, err := NewMatcher(enum).Match(context.Background(), target)
			if tt.match && err != nil {
				t.Errorf("Match() error = %v, want match", err)
			}
			if !tt.match && !errors.Is(err, ErrNoMatch) {
				t.Errorf("Match() error = %v, want ErrNoMatch", err)
			}
		})
	}
}

func TestMatchFirstWindowWins(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{{
		{ID: 1, Title: "RetroArch 1.9.0", App: "retroarch"},
		{ID: 2, Title: "RetroArch 1.9.0", App: "retroarch"},
	}}}

	win, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if win.ID != 1 {
		t.Errorf("window id = %d, want the first match 1", win.ID)
	}
}

func TestMatchSkipsWrongExecutable(t *testing.T) {
	enum := &fakeEnumerator{rounds: [][]window.Window{{
		{ID: 1, Title: "RetroArch forum - Firefox", App: "firefox"},
		{ID: 2, Title: "RetroArch 1.9.0", App: "retroarch"},
	}}}

	win, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(0))
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if win.ID != 2 {
		t.Errorf("window id = %d, want 2", win.ID)
	}
}

func TestMatchBadPattern(t *testing.T) {
	enum := &fakeEnumerator{}
	target := config.CaptureTarget{Executable: "app", TitlePattern: "["}

	_, err := NewMatcher(enum).Match(context.Background(), target)
	if !errors.Is(err, ErrBadPattern) {
		t.Fatalf("Match() error = %v, want ErrBadPattern", err)
	}
	if enum.calls != 0 {
		t.Errorf("enumerations = %d, want 0 for a pattern that never compiles", enum.calls)
	}
}

func TestMatchEnumerationErrorPropagates(t *testing.T) {
	enumErr := errors.New("backend gone")
	enum := &fakeEnumerator{err: enumErr}

	_, err := NewMatcher(enum).Match(context.Background(), retroarchTarget(3))
	if !errors.Is(err, enumErr) {
		t.Fatalf("Match() error = %v, want wrapped backend error", err)
	}
	if errors.Is(err, ErrNoMatch) {
		t.Error("backend failure reported as ErrNoMatch")
	}
	if enum.calls != 1 {
		t.Errorf("enumerations = %d, want 1", enum.calls)
	}
}

func TestMatchContextCancelledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enum := &fakeEnumerator{}
	target := retroarchTarget(3)
	target.RetryDelayMS = 50

	_, err := NewMatcher(enum).Match(ctx, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Match() error = %v, want context.Canceled", err)
	}
	if enum.calls != 1 {
		t.Errorf("enumerations = %d, want 1 before the cancelled pause", enum.calls)
	}
}
