package fetcher

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	maxBodyBytes     = 8 << 20
)

// HTTPOptions are shared by every HTTP-backed adapter.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// httpSource is the transport every HTTP adapter embeds. Each call is bounded by
// the client timeout; there is no retry here.
type httpSource struct {
	name      string
	baseURL   string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

func newHTTPSource(name string, opts HTTPOptions, defaultBase string, logger zerolog.Logger) httpSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBase
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	return httpSource{
		name:      name,
		baseURL:   baseURL,
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "fetcher").Str("source", name).Logger(),
	}
}

// get performs one GET and returns the body of a 200 response.
func (h *httpSource) get(ctx context.Context, endpoint string, headers map[string]string) ([]byte, error) {
	shown := redactURL(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Source: h.name, URL: shown, Err: err}
	}
	req.Header.Set("User-Agent", h.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &TransportError{Source: h.name, URL: shown, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Source: h.name, URL: shown, Status: resp.StatusCode, Err: err}
	}

	h.logger.Debug().Str("url", shown).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).Int("bytes", len(body)).Msg("upstream response")

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Source: h.name, URL: shown, Status: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

// lookbackWindows yields the requested window followed by the wider fallbacks, each once, ascending.
func lookbackWindows(requested int, fallbacks ...int) []int {
	out := make([]int, 0, len(fallbacks)+1)
	seen := make(map[int]struct{})
	add := func(n int) {
		if n <= 0 {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		if len(out) > 0 && n < out[len(out)-1] {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	add(requested)
	for _, n := range fallbacks {
		add(n)
	}
	return out
}

func isBlankJSON(body []byte) bool {
	switch strings.TrimSpace(string(body)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
