// Package rsc scrapes values out of React Server Component ("flight") payloads
// served by the SakuraFM frontend.
//
// The format is not a public API. Everything here is coupled to the markup the
// site renders today and is expected to break when it changes.
package rsc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrFragmentNotFound is returned when no line of the payload carries the marker.
var ErrFragmentNotFound = errors.New("rsc: fragment not found")

// ReferencePrefix marks a string value that points at another row of the payload.
const ReferencePrefix = "$"

// Marker describes where a JSON fragment lives in a payload.
type Marker struct {
	// Needle selects candidate lines.
	Needle string
	// Anchor is where the fragment starts inside the selected line.
	Anchor string
	// Last picks the last matching line instead of the first.
	Last bool
}

var (
	// CharactersMarker locates the search results fragment.
	CharactersMarker = Marker{Needle: `{"characters"`, Anchor: `{"characters"`, Last: true}
	// SuccessMarker locates the character info fragment.
	SuccessMarker = Marker{Needle: `"success"`, Anchor: `{`}
)

// Extractor pulls fragments and reference values out of an embedded payload.
type Extractor interface {
	LocateFragment(payload string, m Marker) (string, error)
	ResolveReference(value, payload string) string
}

// Flight is the Extractor for the Next.js flight format.
type Flight struct{}

// NewFlight returns the default extractor.
func NewFlight() *Flight {
	return &Flight{}
}

// LocateFragment returns the slice of the selected line starting at the anchor.
func (f *Flight) LocateFragment(payload string, m Marker) (string, error) {
	lines := strings.Split(payload, "\n")

	line, found := "", false
	for i := range lines {
		idx := i
		if m.Last {
			idx = len(lines) - 1 - i
		}
		if strings.Contains(lines[idx], m.Needle) {
			line, found = lines[idx], true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: no line contains %s", ErrFragmentNotFound, m.Needle)
	}

	start := strings.Index(line, m.Anchor)
	if start < 0 {
		return "", fmt.Errorf("%w: anchor %s missing", ErrFragmentNotFound, m.Anchor)
	}

	return strings.TrimRight(line[start:], "\r"), nil
}

var anyRowKey = regexp.MustCompile(`[0-9a-f]{1,4}:`)

// ResolveReference substitutes a "$key" value with the text row "key:T<len>,..."
// found in payload. Values that are not references, or whose row is missing,
// are returned unchanged.
func (f *Flight) ResolveReference(value, payload string) string {
	if !strings.HasPrefix(value, ReferencePrefix) || len(value) == len(ReferencePrefix) {
		return value
	}

	key := value[len(ReferencePrefix):]
	row := regexp.MustCompile(`(?:^|[^0-9a-f])` + regexp.QuoteMeta(key) + `:T([0-9a-f]{0,8}),`)

	loc := row.FindStringSubmatchIndex(payload)
	if loc == nil {
		return value
	}

	rest := payload[loc[1]:]

	// Text rows carry their byte length in hex.
	if size, err := strconv.ParseInt(payload[loc[2]:loc[3]], 16, 64); err == nil && int(size) <= len(rest) {
		return rest[:size]
	}

	if end := anyRowKey.FindStringIndex(rest); end != nil {
		return rest[:end[0]]
	}
	return rest
}
