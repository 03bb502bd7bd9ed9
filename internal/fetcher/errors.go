package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// TransportError covers network failures, non-200 statuses and undecodable bodies.
type TransportError struct {
	Source string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: http %d from %s: %s", e.Source, e.Status, e.URL, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: http %d from %s", e.Source, e.Status, e.URL)
	case e.URL != "":
		return fmt.Sprintf("%s: request %s: %v", e.Source, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EmptyResponseError is a well-formed response that carried zero records.
type EmptyResponseError struct {
	Source string
	Detail string
}

func (e *EmptyResponseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: empty response", e.Source)
	}
	return fmt.Sprintf("%s: empty response (%s)", e.Source, e.Detail)
}

const maxErrorBody = 200

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "…"
	}
	return s
}

var secretParams = []string{"c", "apikey", "api_key", "token", "key"}

// redactURL hides credentials carried in query parameters.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
