// Package sakura is an unofficial client for the SakuraFM chat-character service.
//
// A Client holds one HTTP connection pool and one cookie session obtained from
// the Clerk auth provider. Login state (session id and refresh token) belongs to
// the caller and is passed into every privileged call.
package sakura

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sakura-go/sakura/pkg/sakura/rsc"
	"github.com/sirupsen/logrus"
)

const (
	DefaultClerkURL    = "https://clerk.sakura.fm"
	DefaultAPIURL      = "https://api.sakura.fm/api"
	DefaultFrontendURL = "https://www.sakura.fm"

	DefaultLocale         = "en"
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultRefreshEvery   = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	referer = "https://www.sakura.fm"
)

// Observer receives one call per upstream request.
type Observer interface {
	ObserveRequest(operation string, statusCode int, duration time.Duration)
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	ClerkURL       string
	APIURL         string
	FrontendURL    string
	AcceptLanguage string
	// UserAgent is picked from a browser list when empty.
	UserAgent      string
	RequestTimeout time.Duration
	RefreshEvery   time.Duration

	HTTPClient *http.Client
	Extractor  rsc.Extractor
	Observer   Observer
	// Now overrides the session clock.
	Now func() time.Time
}

// Client talks to the three SakuraFM hosts.
type Client struct {
	clerkURL       string
	apiURL         string
	frontendURL    string
	acceptLanguage string
	userAgent      string

	httpClient *http.Client
	session    *Session
	extractor  rsc.Extractor
	observer   Observer
	logger     *logrus.Logger
}

// New creates a client. No request is made until the first operation.
func New(opts Options, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	c := &Client{
		clerkURL:       strings.TrimSuffix(orDefault(opts.ClerkURL, DefaultClerkURL), "/"),
		apiURL:         strings.TrimSuffix(orDefault(opts.APIURL, DefaultAPIURL), "/"),
		frontendURL:    strings.TrimSuffix(orDefault(opts.FrontendURL, DefaultFrontendURL), "/"),
		acceptLanguage: orDefault(opts.AcceptLanguage, DefaultAcceptLanguage),
		userAgent:      opts.UserAgent,
		httpClient:     opts.HTTPClient,
		extractor:      opts.Extractor,
		observer:       opts.Observer,
		logger:         logger,
	}

	if c.userAgent == "" {
		c.userAgent = randomUserAgent()
	}
	if c.httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.extractor == nil {
		c.extractor = rsc.NewFlight()
	}

	refreshEvery := opts.RefreshEvery
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshEvery
	}
	c.session = NewSession(refreshEvery, c.fetchSessionCookies, opts.Now)

	logger.WithFields(logrus.Fields{
		"clerk":    c.clerkURL,
		"api":      c.apiURL,
		"frontend": c.frontendURL,
	}).Debug("SakuraFM client created")

	return c
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// EnsureSession refreshes the cookie session when it is missing, stale, or
// when force is set.
func (c *Client) EnsureSession(ctx context.Context, force bool) error {
	_, err := c.session.Cookies(ctx, force)
	return err
}

// response is a fully read upstream response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *response) cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.acceptLanguage)
	req.Header.Set("Referer", referer)
	req.Header.Set("RSC", "1")
	req.Header.Set("User-Agent", c.userAgent)

	return req, nil
}

// do sends the request and reads the whole body.
func (c *Client) do(op string, req *http.Request) (*response, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, time.Since(start))
		return nil, fmt.Errorf("failed to send %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	c.observe(op, resp.StatusCode, duration)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	c.logger.WithFields(logrus.Fields{
		"operation": op,
		"method":    req.Method,
		"url":       req.URL.Redacted(),
		"status":    resp.StatusCode,
		"duration":  duration,
	}).Debug("SakuraFM request")

	return &response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) observe(op string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(op, status, d)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
