// Package ongoing tracks outages that are still in progress by polling the
// vendor outage API and reconciling the answers with the store.
package ongoing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wanops/outagewatch/internal/feed"
)

// ErrFeedStatus is returned when the vendor API answers with a non-200 status.
var ErrFeedStatus = errors.New("unexpected feed status")

// Defaults for the vendor client.
const (
	DefaultTimeout = 30 * time.Second
	DefaultRate    = 2.0
	startLayout    = "2006-01-02T15:04:05.000Z"
)

// Record is one outage as the vendor reports it. End is nil while the
// network is still down.
type Record struct {
	NetworkID int64
	Start     time.Time
	End       *time.Time
	Reason    string
}

// Open reports whether the outage is still in progress.
func (r Record) Open() bool { return r.End == nil }

// Source answers outage queries. *Client is the production implementation.
type Source interface {
	NetworkOutages(ctx context.Context, networkID int64, since time.Time) ([]Record, error)
	BulkPage(ctx context.Context, since time.Time, cursor string) ([]Record, string, error)
}

// Client talks to the vendor outage API.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client (and its timeout).
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

// WithTimeout bounds each request. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithRate paces outbound requests to perSecond, burst 1. Zero disables pacing.
func WithRate(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient returns a Client for the API rooted at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type wireOutage struct {
	NetworkID json.Number `json:"network_id"`
	Start     string      `json:"start"`
	End       *string     `json:"end"`
	Reason    string      `json:"reason"`
}

type wireResponse struct {
	Data *struct {
		Outages []wireOutage `json:"outages"`
		Next    string       `json:"next"`
	} `json:"data"`
}

// NetworkOutages returns the outages of one network starting at or after since.
func (c *Client) NetworkOutages(ctx context.Context, networkID int64, since time.Time) ([]Record, error) {
	q := url.Values{"start": {since.UTC().Format(startLayout)}}
	resp, err := c.get(ctx, fmt.Sprintf("/networks/%d", networkID), q)
	if err != nil {
		return nil, fmt.Errorf("network %d: %w", networkID, err)
	}
	recs, err := decode(resp.Data.Outages, networkID)
	if err != nil {
		return nil, fmt.Errorf("network %d: %w", networkID, err)
	}
	return recs, nil
}

// BulkPage returns one page of fleet-wide outages and the cursor of the next
// page, empty on the last one.
func (c *Client) BulkPage(ctx context.Context, since time.Time, cursor string) ([]Record, string, error) {
	q := url.Values{"start": {since.UTC().Format(startLayout)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	resp, err := c.get(ctx, "/outages", q)
	if err != nil {
		return nil, "", fmt.Errorf("bulk page %q: %w", cursor, err)
	}
	recs, err := decode(resp.Data.Outages, 0)
	if err != nil {
		return nil, "", fmt.Errorf("bulk page %q: %w", cursor, err)
	}
	return recs, resp.Data.Next, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*wireResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-User-Token", c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrFeedStatus, res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out wireResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Data == nil {
		return nil, errors.New("response has no data object")
	}
	return &out, nil
}

// decode converts wire outages. A zero networkID means each record carries
// its own.
func decode(in []wireOutage, networkID int64) ([]Record, error) {
	out := make([]Record, 0, len(in))
	for _, w := range in {
		r := Record{NetworkID: networkID, Reason: w.Reason}
		if networkID == 0 {
			id, err := strconv.ParseInt(strings.TrimSuffix(w.NetworkID.String(), ".0"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("network_id %q: %w", w.NetworkID, err)
			}
			r.NetworkID = id
		}
		start, err := feed.ParseTime(w.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		r.Start = start
		if w.End != nil && strings.TrimSpace(*w.End) != "" {
			end, err := feed.ParseTime(*w.End)
			if err != nil {
				return nil, fmt.Errorf("end: %w", err)
			}
			r.End = &end
		}
		out = append(out, r)
	}
	return out, nil
}
