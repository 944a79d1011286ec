package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"stockscan/internal/logger"
	"stockscan/internal/notify"
)

const (
	MsgFailed     = "Failed to process image. Please try again."
	MsgIdentified = "Item identified successfully!"
	MsgNoItems    = "No items detected. Try another angle or image."
)

// Client submits encoded images to the detection service, or simulates it.
type Client struct {
	cfg        Config
	httpClient *http.Client
	notifier   notify.Notifier

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRand fixes the source used by the random simulated mode.
func WithRand(r *rand.Rand) Option {
	return func(c *Client) { c.rng = r }
}

func NewClient(cfg Config, notifier notify.Notifier, opts ...Option) *Client {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.SimulatedMode == "" {
		cfg.SimulatedMode = ModeAll
	}
	if notifier == nil {
		notifier = notify.Discard
	}

	c := &Client{
		cfg:      cfg,
		notifier: notifier,
		// No client-level timeout: the request lives as long as its context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UsesRealAPI reports whether requests go to the remote endpoint.
func (c *Client) UsesRealAPI() bool {
	return c.cfg.UseRealAPI
}

// Detect is the error boundary of the detection flow. Failures are turned
// into notifications and a nil result; an empty detection yields an empty,
// non-nil slice and a warning. It never returns an error.
func (c *Client) Detect(ctx context.Context, payload, session string) (results []Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogError("Panic during object detection: %v", r)
			notify.Error(c.notifier, session, MsgFailed)
			results = nil
		}
	}()

	results, err := c.Request(ctx, payload)
	switch {
	case err == nil:
		notify.Success(c.notifier, session, MsgIdentified)
		return results
	case errors.Is(err, ErrEmptyResult):
		notify.Warn(c.notifier, session, MsgNoItems)
		return []Result{}
	case errors.Is(err, context.Canceled):
		logger.LogInfo("Detection cancelled for session %s", session)
		return nil
	default:
		logger.LogError("Error during object detection: %v", err)
		notify.Error(c.notifier, session, MsgFailed)
		return nil
	}
}

// Request runs one detection and reports failures as errors:
// *TransportError, *RemoteDetectionError or ErrEmptyResult.
func (c *Client) Request(ctx context.Context, payload string) ([]Result, error) {
	if !c.cfg.UseRealAPI {
		return c.simulate(ctx)
	}
	return c.remote(ctx, payload)
}

type detectRequest struct {
	Image string `json:"image"`
}

func (c *Client) remote(ctx context.Context, payload string) ([]Result, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(detectRequest{Image: payload})
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	logger.LogDebug("Sending image to %s for detection (%d bytes)", c.cfg.Endpoint, len(payload))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteDetectionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	results, err := DecodeResults(respBody)
	if err != nil {
		return nil, &TransportError{Op: "decode response", Err: err}
	}
	logger.LogDebug("Detection returned %d item classes", len(results))

	if len(results) == 0 {
		return results, ErrEmptyResult
	}
	return results, nil
}

func (c *Client) simulate(ctx context.Context) ([]Result, error) {
	timer := time.NewTimer(c.cfg.SimulatedLatency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if c.cfg.SimulatedMode == ModeRandom {
		c.rngMu.Lock()
		pick := c.cfg.Catalog[c.rng.IntN(len(c.cfg.Catalog))]
		c.rngMu.Unlock()
		return []Result{pick}, nil
	}

	out := make([]Result, len(c.cfg.Catalog))
	copy(out, c.cfg.Catalog)
	return out, nil
}

// CheckHealth calls <scheme>://<host>/health of the detection service.
func (c *Client) CheckHealth(ctx context.Context) error {
	if !c.cfg.UseRealAPI {
		return nil
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = "/health"
	u.RawQuery = ""

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
