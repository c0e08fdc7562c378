package sakura

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestEnsureSessionReusesCookiesWithinInterval(t *testing.T) {
	f := newFakeSakura(t)
	clock := newFakeClock()
	c := f.newClient(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := c.EnsureSession(ctx, false); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	clock.Advance(DefaultRefreshEvery / 2)
	if err := c.EnsureSession(ctx, false); err != nil {
		t.Fatalf("ensure after half interval: %v", err)
	}

	if got := f.clientCalls.Load(); got != 1 {
		t.Fatalf("expected 1 session request, got %d", got)
	}
}

func TestEnsureSessionForceRefreshes(t *testing.T) {
	f := newFakeSakura(t)
	c := f.newClient(newFakeClock())
	ctx := context.Background()

	if err := c.EnsureSession(ctx, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := c.EnsureSession(ctx, true); err != nil {
		t.Fatalf("forced ensure: %v", err)
	}

	if got := f.clientCalls.Load(); got != 2 {
		t.Fatalf("expected 2 session requests, got %d", got)
	}
}

func TestEnsureSessionRefreshesAfterInterval(t *testing.T) {
	f := newFakeSakura(t)
	clock := newFakeClock()
	c := f.newClient(clock)
	ctx := context.Background()

	if err := c.EnsureSession(ctx, false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	clock.Advance(DefaultRefreshEvery + time.Second)
	if err := c.EnsureSession(ctx, false); err != nil {
		t.Fatalf("ensure after interval: %v", err)
	}

	if got := f.clientCalls.Load(); got != 2 {
		t.Fatalf("expected 2 session requests, got %d", got)
	}
}

func TestEnsureSessionConcurrentCallersShareRefresh(t *testing.T) {
	f := newFakeSakura(t)
	c := f.newClient(newFakeClock())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.EnsureSession(context.Background(), false)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if got := f.clientCalls.Load(); got != 1 {
		t.Fatalf("expected 1 session request, got %d", got)
	}
}

func TestEnsureSessionWithoutCookiesFails(t *testing.T) {
	f := newFakeSakura(t)
	f.withoutCookies.Store(true)
	c := f.newClient(nil)

	err := c.EnsureSession(context.Background(), false)
	if !errors.Is(err, ErrNoSessionCookies) {
		t.Fatalf("expected ErrNoSessionCookies, got %v", err)
	}

	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if se.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", se.StatusCode)
	}
}

func TestSessionJoinsEverySetCookie(t *testing.T) {
	f := newFakeSakura(t)
	c := f.newClient(nil)

	got, err := c.session.Cookies(context.Background(), false)
	if err != nil {
		t.Fatalf("cookies: %v", err)
	}
	if got != sessionCookies {
		t.Fatalf("expected %q, got %q", sessionCookies, got)
	}
}

func TestSessionReportsRequestsToObserver(t *testing.T) {
	f := newFakeSakura(t)
	obs := &recordingObserver{}
	c := New(Options{ClerkURL: f.clerk.URL, Observer: obs}, nil)

	if err := c.EnsureSession(context.Background(), false); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	ops := obs.operations()
	if len(ops) != 1 || ops[0] != "session" {
		t.Fatalf("expected one session observation, got %v", ops)
	}
}

func TestSessionFetchErrorKeepsPreviousState(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, renewing bool) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return "a=1", nil
	}
	s := NewSession(time.Minute, fetch, newFakeClock().Now)
	ctx := context.Background()

	if _, err := s.Cookies(ctx, false); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := s.Cookies(ctx, true); err == nil {
		t.Fatal("expected forced fetch to fail")
	}
	got, err := s.Cookies(ctx, false)
	if err != nil {
		t.Fatalf("cookies: %v", err)
	}
	if got != "a=1" || calls != 2 {
		t.Fatalf("expected cached cookies after failure, got %q after %d calls", got, calls)
	}
}

func TestMergeCookiesOverridesByName(t *testing.T) {
	got := mergeCookies("a=1; b=2", []*http.Cookie{
		{Name: "b", Value: "3"},
		{Name: "c", Value: "4"},
	})
	if want := "a=1;b=3;c=4"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
