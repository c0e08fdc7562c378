package sakura

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrLoginPending means the email link has not been followed yet.
	ErrLoginPending = errors.New("sakura: login pending")
	// ErrNotAuthorized means the polling budget ran out before the login completed.
	ErrNotAuthorized = errors.New("sakura: not authorized")
	// ErrInvalidArgument is returned before any request is made.
	ErrInvalidArgument = errors.New("sakura: invalid argument")
	// ErrNoSessionCookies means the auth provider did not hand out any cookie.
	ErrNoSessionCookies = errors.New("sakura: no session cookies")
)

// ServiceError is returned for every failed exchange with SakuraFM: non-2xx
// responses, missing fields and success=false payloads.
type ServiceError struct {
	Op         string
	StatusCode int
	// Details is a dump of the response status, headers and body.
	Details string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sakura: %s", e.Op)
	}
	return fmt.Sprintf("sakura: %s (status %d)", e.Op, e.StatusCode)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

func newServiceError(op string, resp *response) *ServiceError {
	return &ServiceError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Details:    describeResponse(resp),
	}
}

// upstreamError builds the error for a non-2xx response, appending the Clerk
// error description when the body carries one.
func upstreamError(op string, resp *response) *ServiceError {
	se := newServiceError(op, resp)
	if desc := errorDescription(resp.Body); desc != "" {
		se.Op = op + ": " + desc
	}
	return se
}

func describeResponse(resp *response) string {
	if resp == nil {
		return "Failed to get response from SakuraFM"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d (%s)\nHeaders: ", resp.StatusCode, http.StatusText(resp.StatusCode))

	if len(resp.Header) == 0 {
		b.WriteString("none")
	} else {
		keys := make([]string, 0, len(resp.Header))
		for k := range resp.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[ '%s'='%s' ]", k, strings.Join(resp.Header[k], ", "))
		}
	}

	content := string(resp.Body)
	if content == "" {
		content = "none"
	}
	fmt.Fprintf(&b, "\nContent: %s", content)

	return b.String()
}

// errorDescription reads Clerk's {"errors":[...],"clerk_trace_id":...} shape.
func errorDescription(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	parsed := gjson.ParseBytes(body)
	var parts []string
	parsed.Get("errors").ForEach(func(_, e gjson.Result) bool {
		msg := e.Get("long_message").String()
		if msg == "" {
			msg = e.Get("message").String()
		}
		if code := e.Get("code").String(); code != "" {
			msg = fmt.Sprintf("%s [%s]", msg, code)
		}
		if msg != "" {
			parts = append(parts, msg)
		}
		return true
	})

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if trace := parsed.Get("clerk_trace_id").String(); trace != "" {
		return "clerk trace " + trace
	}
	return ""
}
