package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// Caption listing:
// Primary:  scrape watch page ytInitialPlayerResponse → captionTracks (works from most IPs)
// Fallback: ANDROID Innertube /player → captionTracks

// recaptchaMarkers appear on the interstitial YouTube serves instead of the watch page
// when it suspects automated traffic.
var recaptchaMarkers = []string{`class="g-recaptcha"`, "www.google.com/recaptcha", "/sorry/index"}

const (
	maxWatchPageBytes = 6 * 1024 * 1024
	maxCaptionBytes   = 4 * 1024 * 1024
)

// YouTubeClient implements CaptionService against youtube.com.
// Zero-value URL fields use the production endpoints.
type YouTubeClient struct {
	HTTPClient *http.Client
	Retry      engine.RetryConfig
	WatchURL   string // video id is appended
	PlayerURL  string
}

// NewYouTubeClient creates a client using the engine HTTP client.
func NewYouTubeClient(hc *http.Client) *YouTubeClient {
	if hc == nil {
		hc = engine.NewHTTPClient(0)
	}
	return &YouTubeClient{HTTPClient: hc, Retry: engine.DefaultRetryConfig}
}

// ListTracks returns the fetchable caption tracks for id.
func (c *YouTubeClient) ListTracks(ctx context.Context, id VideoID) ([]Track, error) {
	tracks, watchErr := c.listViaWatchPage(ctx, id)
	if watchErr == nil {
		return tracks, nil
	}
	if errors.Is(watchErr, ErrBlocked) {
		return nil, watchErr
	}
	slog.Warn("youtube: watch page failed, trying player",
		slog.String("id", string(id)), slog.Any("error", watchErr))

	tracks, playerErr := c.listViaPlayer(ctx, id)
	if playerErr == nil {
		return tracks, nil
	}
	return nil, errors.Join(watchErr, playerErr)
}

func (c *YouTubeClient) listViaWatchPage(ctx context.Context, id VideoID) ([]Track, error) {
	watchURL := c.WatchURL
	if watchURL == "" {
		watchURL = ytWatchURL
	}
	page, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL+url.QueryEscape(string(id)), nil)
		if err != nil {
			return nil, err
		}
		engine.SetBrowserHeaders(req)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		return req, nil
	}, maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	for _, m := range recaptchaMarkers {
		if bytes.Contains(page, []byte(m)) {
			return nil, fmt.Errorf("watch page: %w: recaptcha", ErrBlocked)
		}
	}
	pr, ok := parsePlayerResponse(page)
	if !ok {
		return nil, errors.New("watch page: ytInitialPlayerResponse not found")
	}
	return tracksFromPlayer(id, pr)
}

func (c *YouTubeClient) listViaPlayer(ctx context.Context, id VideoID) ([]Track, error) {
	playerURL := c.PlayerURL
	if playerURL == "" {
		playerURL = ytInnertubeURL
	}
	reqBody, err := json.Marshal(androidPlayerRequest(id))
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return req, nil
	}, maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("android player: %w", err)
	}

	var pr playerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("android player: decode: %w", err)
	}
	return tracksFromPlayer(id, &pr)
}

// tracksFromPlayer classifies the playability status and converts usable caption tracks.
func tracksFromPlayer(id VideoID, pr *playerResponse) ([]Track, error) {
	if ps := pr.PlayabilityStatus; ps != nil && ps.Status != "" && ps.Status != "OK" {
		reason := strings.ToLower(ps.Reason)
		switch {
		case strings.Contains(reason, "bot"), strings.Contains(reason, "sign in to confirm"):
			return nil, fmt.Errorf("%w: %s", ErrBlocked, ps.Reason)
		case ps.Status == "ERROR", ps.Status == "UNPLAYABLE", ps.Status == "LOGIN_REQUIRED":
			return nil, fmt.Errorf("%w: %s", ErrVideoUnavailable, ps.Reason)
		}
	}
	if pr.Captions == nil {
		return nil, ErrCaptionsDisabled
	}
	raw := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(raw) == 0 {
		return nil, ErrCaptionsDisabled
	}

	tracks := make([]Track, 0, len(raw))
	for _, ct := range raw {
		if ct.BaseURL == "" || needsPoToken(ct.BaseURL) {
			continue
		}
		name := ct.Name.String()
		if name == "" {
			name = ct.LanguageCode
		}
		tracks = append(tracks, Track{
			VideoID:        id,
			Language:       name,
			LanguageCode:   ct.LanguageCode,
			IsGenerated:    ct.Kind == "asr",
			IsTranslatable: ct.IsTranslatable,
			BaseURL:        ct.BaseURL,
		})
	}
	if len(tracks) == 0 {
		return nil, errors.New("all caption tracks require a PoToken")
	}
	return tracks, nil
}

// FetchTrack downloads and parses a caption track.
func (c *YouTubeClient) FetchTrack(ctx context.Context, t Track) ([]Segment, error) {
	if t.BaseURL == "" {
		return nil, errors.New("track has no url")
	}
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		engine.SetBrowserHeaders(req)
		return req, nil
	}, maxCaptionBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch %s track: %w", t.LanguageCode, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("fetch %s track: empty caption body", t.LanguageCode)
	}
	segs, err := ParseTimedText(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s track: %w", t.LanguageCode, err)
	}
	return segs, nil
}

// Translate returns a track that YouTube machine-translates into lang.
func (c *YouTubeClient) Translate(t Track, lang string) (Track, error) {
	if !t.IsTranslatable {
		return Track{}, fmt.Errorf("%w: %s", ErrNotTranslatable, t.LanguageCode)
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return Track{}, fmt.Errorf("translate: %w", err)
	}
	q := u.Query()
	q.Set("tlang", lang)
	u.RawQuery = q.Encode()

	out := t
	out.BaseURL = u.String()
	out.Language = t.Language + " (auto-translated to " + lang + ")"
	out.LanguageCode = lang
	out.IsTranslatable = false
	out.TranslatedFrom = t.LanguageCode
	return out, nil
}

// do sends the request built by build, retrying transient failures.
// 429 maps to ErrBlocked; any other non-200 status is a *engine.StatusError.
func (c *YouTubeClient) do(ctx context.Context, build func() (*http.Request, error), limit int64) ([]byte, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := engine.RetryHTTP(ctx, c.Retry, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return hc.Do(req)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: http 429", ErrBlocked)
	case resp.StatusCode != http.StatusOK:
		return nil, &engine.StatusError{StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
