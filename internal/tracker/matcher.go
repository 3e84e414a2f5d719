package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/recapture/internal/config"
	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/window"
)

// ErrNoMatch reports that no window satisfied the target after all
// enumeration passes. It marks absence, not failure.
var ErrNoMatch = errors.New("no matching window")

// ErrBadPattern reports a title pattern that does not compile. It is a
// configuration error; config validation normally catches it first.
var ErrBadPattern = errors.New("invalid title pattern")

// Enumerator is the slice of a window backend that matching needs.
type Enumerator interface {
	Windows() ([]window.Window, error)
}

// Matcher finds the window a capture target describes: owned by the target
// executable, title matching the target pattern.
type Matcher struct {
	windows Enumerator
	log     *zerolog.Logger
}

// NewMatcher creates a matcher over the given enumerator.
func NewMatcher(windows Enumerator) *Matcher {
	return &Matcher{
		windows: windows,
		log:     logger.WithComponent("matcher"),
	}
}

// Match searches for the target window. It makes target.RetryCount+1
// enumeration passes, pausing target.RetryDelay between them, and returns
// the first window (in enumeration order) whose application name equals the
// target executable case-insensitively and whose title matches the anchored
// pattern. Misses return ErrNoMatch.
func (m *Matcher) Match(ctx context.Context, target config.CaptureTarget) (*window.Window, error) {
	re, err := compilePattern(target.TitlePattern)
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Str("pattern", target.TitlePattern).
		Str("executable", target.Executable).
		Msg("Searching for window")

	for attempt := 0; attempt <= target.RetryCount; attempt++ {
		if attempt > 0 {
			if err := pause(ctx, target.RetryDelay()); err != nil {
				return nil, err
			}
			m.log.Info().Int("retry", attempt).Msg("Retrying window search")
		}

		windows, err := m.windows.Windows()
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate windows: %w", err)
		}

		for i := range windows {
			w := &windows[i]
			if !strings.EqualFold(w.App, target.Executable) {
				continue
			}
			if !re.MatchString(w.Title) {
				continue
			}
			m.log.Info().
				Str("title", w.Title).
				Uint32("id", w.ID).
				Msg("Matching window found")
			return w, nil
		}

		m.log.Info().
			Str("pattern", target.TitlePattern).
			Str("executable", target.Executable).
			Msg("No matching window")
	}

	m.log.Warn().Msg("Retries exceeded, giving up")
	return nil, ErrNoMatch
}

// compilePattern anchors the title pattern at the start of the title, so
// "foo" matches "foobar" but not "xfoobar". Matching stays case-sensitive.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
	}
	return re, nil
}

// pause waits for the delay or until ctx is cancelled. A zero delay returns
// immediately.
func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
