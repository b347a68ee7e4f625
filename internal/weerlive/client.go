package weerlive

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
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://weerlive.nl/api/json-data-10min.php"
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrNetwork covers connection errors, timeouts and non-2xx responses.
	ErrNetwork = errors.New("weerlive: network error")
	// ErrParse covers malformed payloads and missing or non-numeric fields.
	ErrParse = errors.New("weerlive: parse error")
	// ErrNoData is returned by accessors before the first successful refresh.
	ErrNoData = errors.New("weerlive: no data")
)

// ConnectionConfig holds the fixed parameters used for every fetch.
type ConnectionConfig struct {
	Latitude  float64
	Longitude float64
	APIKey    string
}

// Location formats the coordinates the way the API expects: "<lat>,<lon>".
func (c ConnectionConfig) Location() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// Store holds the current snapshot. Save must replace the previous value as
// a single unit so readers never see a partial update.
type Store interface {
	Save(snap Snapshot)
	Latest() (Snapshot, error)
}

// Client fetches current weather for one location from Weerlive.
type Client struct {
	conn    ConnectionConfig
	baseURL string
	timeout time.Duration
	http    *http.Client
	circuit *gobreaker.CircuitBreaker
	store   Store
	logger  *slog.Logger
	now     func() time.Time

	// serializes refresh cycles
	mu sync.Mutex
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Weerlive endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for outbound calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Client. store receives every successfully parsed
// snapshot and is the only place the client keeps state.
func NewClient(conn ConnectionConfig, store Store, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		http:    &http.Client{Timeout: DefaultTimeout},
		circuit: newCircuitBreaker(),
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh performs one fetch-and-parse cycle. On success the stored snapshot
// is replaced. On failure nothing changes; when guarded is true the failure
// is logged and swallowed, otherwise it is returned wrapping ErrNetwork or
// ErrParse.
func (c *Client) Refresh(ctx context.Context, guarded bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	fields, err := c.fetch(ctx)
	if err != nil {
		if guarded {
			c.logger.Warn("weerlive: error fetching data, keeping last snapshot", "error", err)
			return nil
		}
		return err
	}

	c.store.Save(Snapshot{Fields: fields, UpdatedAt: now})
	c.logger.Debug("weerlive: snapshot updated", "fields", fields, "updated_at", now)
	return nil
}

// HasData reports whether a snapshot was ever stored.
func (c *Client) HasData() bool {
	_, err := c.store.Latest()
	return err == nil
}

// UpdatedAt returns the time of the last successful refresh.
func (c *Client) UpdatedAt() (time.Time, bool) {
	snap, err := c.store.Latest()
	if err != nil {
		return time.Time{}, false
	}
	return snap.UpdatedAt, true
}

// Snapshot returns a copy of the current snapshot.
func (c *Client) Snapshot() (Snapshot, bool) {
	snap, err := c.store.Latest()
	if err != nil {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

// Temperature is the current temperature in °C.
func (c *Client) Temperature() (float64, error) {
	return c.float(FieldTemperature)
}

// FeelsLikeTemperature is the apparent temperature in °C.
func (c *Client) FeelsLikeTemperature() (float64, error) {
	return c.float(FieldFeelsLike)
}

// WindSpeed is reported in km/h.
func (c *Client) WindSpeed() (float64, error) {
	return c.float(FieldWindSpeed)
}

// WindDirection is the compass code as sent upstream, e.g. "ZW".
func (c *Client) WindDirection() (string, error) {
	snap, err := c.latest()
	if err != nil {
		return "", err
	}
	return snap.Text(FieldWindDirection)
}

func (c *Client) float(field string) (float64, error) {
	snap, err := c.latest()
	if err != nil {
		return 0, err
	}
	return snap.Float(field)
}

func (c *Client) latest() (Snapshot, error) {
	snap, err := c.store.Latest()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	return snap, nil
}

func (c *Client) fetch(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("location", c.conn.Location())
		values.Set("key", c.conn.APIKey)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, c.http, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}

	c.logger.Debug("weerlive: response received", "url", c.baseURL, "status", resp.StatusCode, "bytes", len(body))

	return parsePayload(body)
}

// parsePayload extracts element 0 of the top-level liveweer array.
func parsePayload(body []byte) (map[string]any, error) {
	var payload struct {
		LiveWeer []json.RawMessage `json:"liveweer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(payload.LiveWeer) == 0 {
		return nil, fmt.Errorf("%w: liveweer array missing or empty", ErrParse)
	}

	dec := json.NewDecoder(bytes.NewReader(payload.LiveWeer[0]))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: liveweer[0]: %v", ErrParse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: liveweer[0] is null", ErrParse)
	}
	return fields, nil
}
