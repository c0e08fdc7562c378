package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sakura-go/sakura/internal/models"
	"github.com/sakura-go/sakura/internal/services/cache"
	"github.com/sakura-go/sakura/pkg/markdown"
	"github.com/sakura-go/sakura/pkg/sakura"
)

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")

	opts, err := parseSearchOptions(q.Get("sfw"), q.Get("categories"), q.Get("matchType"))
	if err != nil {
		g.writeError(w, r, "search", err)
		return
	}

	characters, ok := g.cache.GetSearch(r.Context(), search, opts)
	if ok {
		g.metrics.RecordCacheHit(cache.KindSearch)
	} else {
		g.metrics.RecordCacheMiss(cache.KindSearch)

		characters, err = g.client.Search(r.Context(), search, opts)
		if err != nil {
			g.writeError(w, r, "search", err)
			return
		}
		if err := g.cache.SetSearch(r.Context(), search, opts, characters); err != nil {
			g.log(r, "search").WithError(err).Warn("Failed to cache search results")
		}
	}

	if wantsHTML(r) {
		rendered := make([]models.RenderedCharacter, len(characters))
		for i := range characters {
			rendered[i] = renderCharacter(characters[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"characters": rendered})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": characters})
}

func (g *Gateway) handleCharacter(w http.ResponseWriter, r *http.Request) {
	character, err := g.character(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		g.writeError(w, r, "character_info", err)
		return
	}

	if wantsHTML(r) {
		writeJSON(w, http.StatusOK, renderCharacter(*character))
		return
	}
	writeJSON(w, http.StatusOK, character)
}

// character reads through the cache.
func (g *Gateway) character(ctx context.Context, id string) (*sakura.Character, error) {
	if character, ok := g.cache.GetCharacter(ctx, id); ok {
		g.metrics.RecordCacheHit(cache.KindCharacter)
		return character, nil
	}
	g.metrics.RecordCacheMiss(cache.KindCharacter)

	character, err := g.client.GetCharacterInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.cache.SetCharacter(ctx, character); err != nil {
		g.logger.WithError(err).Warn("Failed to cache character")
	}
	return character, nil
}

func parseSearchOptions(sfw, categories, matchType string) (sakura.SearchOptions, error) {
	var opts sakura.SearchOptions

	if sfw != "" {
		v, err := strconv.ParseBool(sfw)
		if err != nil {
			return opts, fmt.Errorf("%w: sfw %q", sakura.ErrInvalidArgument, sfw)
		}
		opts.SFWOnly = v
	}

	if categories != "" {
		for _, name := range strings.Split(categories, ",") {
			cat, err := sakura.ParseCategory(name)
			if err != nil {
				return opts, err
			}
			opts.Categories = append(opts.Categories, cat)
		}
	}

	opts.MatchType = sakura.MatchType(strings.ToLower(matchType))
	return opts, nil
}

func renderCharacter(c sakura.Character) models.RenderedCharacter {
	names := markdown.Names{Char: c.Name}
	return models.RenderedCharacter{
		Character:        c,
		DescriptionHTML:  markdown.ToHTMLWithNames(c.Description, names),
		ScenarioHTML:     markdown.ToHTMLWithNames(c.Scenario, names),
		FirstMessageHTML: markdown.ToHTMLWithNames(c.FirstMessage, names),
	}
}
