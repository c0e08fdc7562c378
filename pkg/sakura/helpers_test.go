package sakura

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookies = "__cf_bm=bm;__client_uat=0"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSakura stands in for the Clerk, API and frontend hosts.
type fakeSakura struct {
	clerk    *httptest.Server
	api      *httptest.Server
	frontend *httptest.Server

	jwt string

	clientCalls    atomic.Int32
	withoutCookies atomic.Bool

	signIn http.HandlerFunc
	token  http.HandlerFunc
	chat   http.HandlerFunc
	page   http.HandlerFunc
}

func newFakeSakura(t *testing.T) *fakeSakura {
	t.Helper()

	f := &fakeSakura{jwt: mintToken(t)}
	f.token = func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"object":"token","jwt":"`+f.jwt+`"}`)
	}

	f.clerk = httptest.NewServer(http.HandlerFunc(f.serveClerk))
	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispatch(f.chat, w, r)
	}))
	f.frontend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispatch(f.page, w, r)
	}))

	t.Cleanup(func() {
		f.clerk.Close()
		f.api.Close()
		f.frontend.Close()
	})

	return f
}

func (f *fakeSakura) serveClerk(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/client":
		f.clientCalls.Add(1)
		if !f.withoutCookies.Load() {
			http.SetCookie(w, &http.Cookie{Name: "__cf_bm", Value: "bm"})
			http.SetCookie(w, &http.Cookie{Name: "__client_uat", Value: "0"})
		}
		writeBody(w, http.StatusOK, `{"response":null,"client":null}`)
	case strings.HasPrefix(r.URL.Path, "/v1/client/sign_ins"):
		dispatch(f.signIn, w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/client/sessions/"):
		dispatch(f.token, w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSakura) newClient(clock *fakeClock) *Client {
	opts := Options{
		ClerkURL:    f.clerk.URL,
		APIURL:      f.api.URL + "/api",
		FrontendURL: f.frontend.URL,
		UserAgent:   "sakura-test",
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	return New(opts, nil)
}

func dispatch(h http.HandlerFunc, w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func mintToken(t *testing.T) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": "sess_1",
		"sub": "user_1",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func loadFixture(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

type recordingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingObserver) ObserveRequest(operation string, statusCode int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, operation)
}

func (o *recordingObserver) operations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ops...)
}
