package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnavailable covers every transport or protocol failure against the
	// provider directory. A directory that answers with zero providers is not
	// an error.
	ErrUnavailable    = errors.New("provider directory unavailable")
	ErrEmptySpecialty = errors.New("specialty is required")
)

// Provider is the directory's view of a bookable practitioner.
type Provider struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Available bool   `json:"available"`
}

type listResponse struct {
	Providers []Provider `json:"providers"`
	Count     int        `json:"count"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FindProvider returns the first available provider the directory lists for
// specialty, or nil when there is none. Selection is first-match; callers
// must not rely on it spreading load.
func (c *Client) FindProvider(ctx context.Context, specialty string) (*Provider, error) {
	if strings.TrimSpace(specialty) == "" {
		return nil, ErrEmptySpecialty
	}

	providers, err := c.listAvailable(ctx, specialty)
	if err != nil {
		return nil, err
	}

	for i := range providers {
		if providers[i].Available {
			p := providers[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (c *Client) listAvailable(ctx context.Context, specialty string) ([]Provider, error) {
	q := url.Values{}
	q.Set("specialty", specialty)
	q.Set("available", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/providers?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}

	return body.Providers, nil
}
