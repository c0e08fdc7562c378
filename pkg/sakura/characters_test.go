package sakura

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sakura-go/sakura/pkg/sakura/rsc"
)

func TestSearch(t *testing.T) {
	f := newFakeSakura(t)
	payload := loadFixture(t, "search.rsc")
	f.page = func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/" || q.Get("search") != "kurisu" || q.Get("allowNsfw") != "true" {
			http.Error(w, "unexpected query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		if r.Header.Get("RSC") != "1" {
			http.Error(w, "missing RSC header", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/x-component")
		_, _ = w.Write([]byte(payload))
	}
	c := f.newClient(nil)

	characters, err := c.Search(context.Background(), "kurisu", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(characters) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(characters))
	}

	kurisu := characters[0]
	if !strings.Contains(kurisu.Name, "Kurisu") {
		t.Fatalf("expected Kurisu, got %q", kurisu.Name)
	}
	wantDesc := "Makise Kurisu is a neuroscience researcher at Viktor Chondria University.\nShe hates being called \"Christina\"."
	if kurisu.Description != wantDesc {
		t.Fatalf("expected resolved description, got %q", kurisu.Description)
	}
	if len(kurisu.ExampleConversation) != 2 || kurisu.ExampleConversation[1].Role != "assistant" {
		t.Fatalf("unexpected example conversation: %+v", kurisu.ExampleConversation)
	}
	if want := time.Date(2023, 11, 4, 14, 50, 9, 6_000_000, time.UTC); !kurisu.CreatedAt.Equal(want) {
		t.Fatalf("expected created at %v, got %v", want, kurisu.CreatedAt)
	}
	if string(kurisu.Tags) != `["science"]` {
		t.Fatalf("expected raw tags, got %s", kurisu.Tags)
	}

	// Unresolvable references pass through.
	if characters[1].Persona != "$ff" {
		t.Fatalf("expected unresolved reference, got %q", characters[1].Persona)
	}
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name string
		opts SearchOptions
		want map[string]string
	}{
		{
			name: "defaults",
			want: map[string]string{"search": "okabe", "allowNsfw": "true"},
		},
		{
			name: "single category",
			opts: SearchOptions{SFWOnly: true, Categories: []Category{Anime}, MatchType: MatchAll},
			want: map[string]string{"search": "okabe", "allowNsfw": "false", "categories": "Anime"},
		},
		{
			name: "several categories",
			opts: SearchOptions{Categories: []Category{Anime, VideoGames}, MatchType: MatchAll},
			want: map[string]string{"search": "okabe", "allowNsfw": "true", "categories": "Anime,Video Games", "matchType": "all"},
		},
		{
			name: "several categories default match",
			opts: SearchOptions{Categories: []Category{MoviesAndTV, DILF}},
			want: map[string]string{"search": "okabe", "allowNsfw": "true", "categories": "Movies & TV,DILF", "matchType": "any"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.opts.query("okabe")
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(q) != len(tt.want) {
				t.Fatalf("expected %d params, got %v", len(tt.want), q)
			}
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Fatalf("expected %s=%q, got %q", k, v, got)
				}
			}
		})
	}
}

func TestSearchQueryRejectsUnknownValues(t *testing.T) {
	if _, err := (SearchOptions{Categories: []Category{Category(99)}}).query("x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for category, got %v", err)
	}
	opts := SearchOptions{Categories: []Category{Male, Female}, MatchType: "most"}
	if _, err := opts.query("x"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for match type, got %v", err)
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	f := newFakeSakura(t)
	f.page = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}
	c := f.newClient(nil)

	_, err := c.Search(context.Background(), "kurisu", SearchOptions{})

	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", se.StatusCode)
	}
}

func TestSearchWithoutResults(t *testing.T) {
	f := newFakeSakura(t)
	f.page = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>nothing here</body></html>"))
	}
	c := f.newClient(nil)

	_, err := c.Search(context.Background(), "kurisu", SearchOptions{})
	if !errors.Is(err, rsc.ErrFragmentNotFound) {
		t.Fatalf("expected ErrFragmentNotFound, got %v", err)
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
}

func TestGetCharacterInfo(t *testing.T) {
	f := newFakeSakura(t)
	payload := loadFixture(t, "character.rsc")
	f.page = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/kurisu-makise" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(payload))
	}
	c := f.newClient(nil)

	character, err := c.GetCharacterInfo(context.Background(), "kurisu-makise")
	if err != nil {
		t.Fatalf("get character info: %v", err)
	}

	const greeting = "Hello, I'm Makise Kurisu. You must be Okabe."
	if character.ID != "kurisu-makise" || character.Name != "Makise Kurisu" {
		t.Fatalf("unexpected character: %+v", character)
	}
	if character.FirstMessage != greeting {
		t.Fatalf("expected resolved first message, got %q", character.FirstMessage)
	}
	if character.ExampleConversation[0].Content != greeting {
		t.Fatalf("expected resolved example, got %q", character.ExampleConversation[0].Content)
	}
	if character.MessageCount != 1048596 || !character.Truncated {
		t.Fatalf("unexpected counters: %+v", character)
	}
}

func TestGetCharacterInfoNotFound(t *testing.T) {
	f := newFakeSakura(t)
	f.page = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0:[\"$@1\",[\"sakura\",null]]\n1:{\"success\":false,\"data\":{\"character\":null}}\n"))
	}
	c := f.newClient(nil)

	_, err := c.GetCharacterInfo(context.Background(), "nobody")

	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if !strings.Contains(se.Op, "character not found") {
		t.Fatalf("expected not found error, got %q", se.Op)
	}
}

func TestGetCharacterInfoUpstreamFailure(t *testing.T) {
	f := newFakeSakura(t)
	f.page = func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}
	c := f.newClient(nil)

	_, err := c.GetCharacterInfo(context.Background(), "nobody")

	var se *ServiceError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 ServiceError, got %v", err)
	}
}

func TestGetCharacterInfoRequiresID(t *testing.T) {
	c := New(Options{}, nil)
	if _, err := c.GetCharacterInfo(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	for _, cat := range Categories() {
		got, err := ParseCategory(strings.ToLower(cat.String()))
		if err != nil {
			t.Fatalf("parse %q: %v", cat, err)
		}
		if got != cat {
			t.Fatalf("expected %v, got %v", cat, got)
		}
	}

	if _, err := ParseCategory("Robots"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if got := Category(42).String(); got != "Category(42)" {
		t.Fatalf("unexpected name for unknown category: %q", got)
	}
}
