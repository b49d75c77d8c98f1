package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultMaxBody caps how much of a response body the http_get tool reads.
const defaultMaxBody = 1 << 20

// HTTPGet fetches a URL over HTTP or HTTPS.
type HTTPGet struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPGet creates the http_get tool. A nil client uses a default with a
// 30 second timeout.
func NewHTTPGet(client *http.Client) *HTTPGet {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPGet{client: client, maxBody: defaultMaxBody}
}

// Contract implements Tool.
func (t *HTTPGet) Contract() Contract {
	return Contract{
		Name:        "http_get",
		Description: "Fetch a URL with an HTTP GET request and return the response body.",
		Params: []Param{
			{Name: "url", Type: "string", Description: "URL to fetch. Only http and https schemes are allowed.", Required: true},
		},
		Scopes: []string{"net:http"},
		Risk:   RiskStandard,
	}
}

// Invoke implements Tool.
func (t *HTTPGet) Invoke(ctx context.Context, params map[string]any) (string, error) {
	raw := stringParam(params, "url")
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q, want http or https", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s returned %s:\n%s", u.String(), resp.Status, body)
	}
	return fmt.Sprintf("%s\n\n%s", resp.Status, body), nil
}
