package sakura

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CookieFetcher obtains a fresh cookie header value. renewing is false for the
// very first fetch of a session.
type CookieFetcher func(ctx context.Context, renewing bool) (string, error)

// Session holds the ambient cookie set and its refresh clock.
type Session struct {
	mu          sync.Mutex
	cookies     string
	refreshedAt time.Time
	every       time.Duration
	fetch       CookieFetcher
	now         func() time.Time
}

// NewSession returns an empty session that refreshes through fetch.
func NewSession(every time.Duration, fetch CookieFetcher, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		every: every,
		fetch: fetch,
		now:   now,
	}
}

// Cookies returns the current cookie header value, refreshing it first when it
// is missing, older than the refresh interval, or force is set. Concurrent
// callers are serialized; the ones that waited reuse the fresh value.
func (s *Session) Cookies(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.cookies != "" && s.now().Sub(s.refreshedAt) < s.every {
		return s.cookies, nil
	}

	cookies, err := s.fetch(ctx, s.cookies != "")
	if err != nil {
		return "", err
	}

	s.cookies = cookies
	s.refreshedAt = s.now()
	return cookies, nil
}

// fetchSessionCookies asks Clerk for a client and keeps every cookie it sets.
func (c *Client) fetchSessionCookies(ctx context.Context, renewing bool) (string, error) {
	if renewing {
		c.httpClient.CloseIdleConnections()
	}

	url := c.clerkURL + "/v1/client?__clerk_api_version=2021-02-05&_clerk_js_version=5.34.1"
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do("session", req)
	if err != nil {
		return "", fmt.Errorf("failed to initialize session: %w", err)
	}

	cookies := joinCookies(resp.cookies())
	if cookies == "" {
		se := newServiceError("failed to initialize session", resp)
		se.Cause = ErrNoSessionCookies
		return "", se
	}

	c.logger.WithFields(logrus.Fields{
		"cookies":  len(resp.cookies()),
		"renewing": renewing,
	}).Info("SakuraFM session refreshed")

	return cookies, nil
}

func joinCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, ";")
}

// mergeCookies overlays extra on base; cookies already named in base take the
// new value.
func mergeCookies(base string, extra []*http.Cookie) string {
	var names []string
	values := make(map[string]string)
	for _, part := range strings.Split(base, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if _, dup := values[name]; !dup {
			names = append(names, name)
		}
		values[name] = value
	}

	for _, ck := range extra {
		if _, dup := values[ck.Name]; !dup {
			names = append(names, ck.Name)
		}
		values[ck.Name] = ck.Value
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, ";")
}
