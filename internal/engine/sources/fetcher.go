package sources

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// FetcherConfig tunes track selection, pacing and block handling.
type FetcherConfig struct {
	Languages  []string      // preference order; defaults to engine.DefaultLanguages
	Target     string        // translation target; defaults to "en"
	Spacing    time.Duration // minimum gap between caption requests; 0 disables pacing
	Jitter     time.Duration // random extra delay before each request
	BlockRetry engine.RetryConfig
}

// Fetcher selects and downloads the best caption track for a video.
//
// Candidates are tried in tiers: manual tracks by language preference, auto-generated
// tracks by preference, machine translation of translatable tracks into Target, then
// every remaining track as-is. A failing candidate is logged and the next one is tried.
type Fetcher struct {
	captions   CaptionService
	languages  []string
	target     string
	limiter    *rate.Limiter
	jitter     time.Duration
	blockRetry engine.RetryConfig
}

// NewFetcher creates a Fetcher over cs.
func NewFetcher(cs CaptionService, fc FetcherConfig) *Fetcher {
	f := &Fetcher{
		captions:   cs,
		languages:  fc.Languages,
		target:     fc.Target,
		jitter:     fc.Jitter,
		blockRetry: fc.BlockRetry,
	}
	if len(f.languages) == 0 {
		f.languages = engine.DefaultLanguages
	}
	if f.target == "" {
		f.target = "en"
	}
	if fc.Spacing > 0 {
		f.limiter = rate.NewLimiter(rate.Every(fc.Spacing), 1)
	}
	return f
}

type candidate struct {
	track     Track
	method    string
	translate bool
}

// Fetch returns the transcript of id with segments sorted by start time.
// Failures are ErrNoCaptionsAvailable or ErrTemporarilyBlocked, wrapping the cause.
func (f *Fetcher) Fetch(ctx context.Context, id VideoID) (*Transcript, error) {
	engine.IncrTranscriptRequests()

	tracks, err := withBlockRetry(ctx, f, func() ([]Track, error) {
		return f.captions.ListTracks(ctx, id)
	})
	if err != nil {
		engine.IncrTranscriptErrors()
		if ctx.Err() != nil {
			return nil, err
		}
		if isBlocked(err) {
			return nil, fmt.Errorf("%w: %w", ErrTemporarilyBlocked, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNoCaptionsAvailable, err)
	}
	if len(tracks) == 0 {
		engine.IncrTranscriptErrors()
		return nil, ErrNoCaptionsAvailable
	}

	var (
		attempts, blocked int
		lastErr           error
	)
	for _, c := range f.plan(tracks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		track := c.track
		if c.translate {
			if track, err = f.captions.Translate(c.track, f.target); err != nil {
				slog.Debug("youtube: translate failed", slog.String("id", string(id)),
					slog.String("lang", c.track.LanguageCode), slog.Any("error", err))
				continue
			}
		}

		attempts++
		segs, err := withBlockRetry(ctx, f, func() ([]Segment, error) {
			return f.captions.FetchTrack(ctx, track)
		})
		if err == nil && len(segs) == 0 {
			err = errors.New("track has no cues")
		}
		if err != nil {
			if isBlocked(err) {
				blocked++
			}
			lastErr = err
			slog.Warn("youtube: caption track failed", slog.String("id", string(id)),
				slog.String("lang", track.LanguageCode), slog.String("method", c.method), slog.Any("error", err))
			continue
		}
		return newTranscript(id, track, c.method, segs), nil
	}

	engine.IncrTranscriptErrors()
	if attempts > 0 && blocked == attempts {
		return nil, fmt.Errorf("%w: %w", ErrTemporarilyBlocked, lastErr)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCaptionsAvailable, lastErr)
	}
	return nil, ErrNoCaptionsAvailable
}

// plan orders the candidate tracks. A track appears at most once per mode.
func (f *Fetcher) plan(tracks []Track) []candidate {
	var out []candidate
	used := make(map[int]bool, len(tracks))

	byPreference := func(generated bool, method string) {
		for _, lang := range f.languages {
			for i, t := range tracks {
				if !used[i] && t.IsGenerated == generated && t.LanguageCode == lang {
					used[i] = true
					out = append(out, candidate{track: t, method: method})
				}
			}
		}
	}
	byPreference(false, MethodManual)
	byPreference(true, MethodGenerated)

	for _, t := range tracks {
		if t.IsTranslatable && t.LanguageCode != f.target {
			out = append(out, candidate{track: t, method: MethodTranslated, translate: true})
		}
	}
	for i, t := range tracks {
		if !used[i] {
			out = append(out, candidate{track: t, method: MethodFallback})
		}
	}
	return out
}

// wait enforces request spacing plus jitter.
func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if f.jitter <= 0 {
		return nil
	}
	t := time.NewTimer(rand.N(f.jitter))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withBlockRetry paces each call and retries it while the service reports a block.
func withBlockRetry[T any](ctx context.Context, f *Fetcher, fn func() (T, error)) (T, error) {
	return engine.RetryIf(ctx, f.blockRetry, isBlocked, func() (T, error) {
		if err := f.wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		v, err := fn()
		if isBlocked(err) {
			engine.IncrCaptionBlocks()
		}
		return v, err
	})
}

// isBlocked reports a rate-limit or bot-check signal worth waiting out.
func isBlocked(err error) bool {
	return err != nil && errors.Is(err, ErrBlocked) &&
		!errors.Is(err, ErrCaptionsDisabled) && !errors.Is(err, ErrVideoUnavailable)
}

func newTranscript(id VideoID, track Track, method string, segs []Segment) *Transcript {
	sorted := slices.Clone(segs)
	slices.SortStableFunc(sorted, func(a, b Segment) int { return cmp.Compare(a.Start, b.Start) })

	t := &Transcript{Segments: sorted}
	var duration float64
	for _, s := range sorted {
		duration = max(duration, s.End())
	}
	t.Metadata = Metadata{
		VideoID:       id,
		Language:      track.Language,
		LanguageCode:  track.LanguageCode,
		IsGenerated:   track.IsGenerated,
		TotalSegments: len(sorted),
		TotalLength:   utf8.RuneCountInString(t.Text()),
		Method:        method,
		Duration:      duration,
	}
	return t
}

// CachedFetcher serves transcripts from the engine cache before asking Source.
type CachedFetcher struct {
	Source TranscriptSource
}

// Fetch implements TranscriptSource.
func (c *CachedFetcher) Fetch(ctx context.Context, id VideoID) (*Transcript, error) {
	key := engine.CacheKey("transcript", string(id))
	if t, ok := engine.CacheLoadJSON[Transcript](ctx, key); ok && len(t.Segments) > 0 {
		slog.Debug("youtube: transcript cache hit", slog.String("id", string(id)))
		return &t, nil
	}
	t, err := c.Source.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	engine.CacheStoreJSON(ctx, key, t)
	return t, nil
}
