package sakura

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakura-go/sakura/pkg/sakura/rsc"
)

// Category is a search tag.
type Category int

const (
	Male Category = iota
	Female
	Anime
	MoviesAndTV
	Yandere
	Tsundere
	Gay
	Lesbian
	Femboy
	Futanari
	VideoGames
	Furry
	Horror
	OC
	Vampire
	NonBinary
	Dominant
	Submissive
	MILF
	DILF
)

var categoryNames = [...]string{
	Male:        "Male",
	Female:      "Female",
	Anime:       "Anime",
	MoviesAndTV: "Movies & TV",
	Yandere:     "Yandere",
	Tsundere:    "Tsundere",
	Gay:         "Gay",
	Lesbian:     "Lesbian",
	Femboy:      "Femboy",
	Futanari:    "Futanari",
	VideoGames:  "Video Games",
	Furry:       "Furry",
	Horror:      "Horror",
	OC:          "OC",
	Vampire:     "Vampire",
	NonBinary:   "Non-binary",
	Dominant:    "Dominant",
	Submissive:  "Submissive",
	MILF:        "MILF",
	DILF:        "DILF",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c]
}

// Categories returns every known category.
func Categories() []Category {
	all := make([]Category, len(categoryNames))
	for i := range categoryNames {
		all[i] = Category(i)
	}
	return all
}

// ParseCategory accepts the wire name, case-insensitively.
func ParseCategory(name string) (Category, error) {
	name = strings.TrimSpace(name)
	for i, n := range categoryNames {
		if strings.EqualFold(n, name) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, name)
}

// MatchType controls how several categories combine.
type MatchType string

const (
	MatchAny MatchType = "any"
	MatchAll MatchType = "all"
)

// SearchOptions narrows a search. The zero value allows NSFW characters and
// applies no category filter.
type SearchOptions struct {
	SFWOnly    bool
	Categories []Category
	MatchType  MatchType
}

func (o SearchOptions) query(search string) (url.Values, error) {
	q := url.Values{}
	q.Set("search", search)
	q.Set("allowNsfw", strconv.FormatBool(!o.SFWOnly))

	if len(o.Categories) == 0 {
		return q, nil
	}

	names := make([]string, len(o.Categories))
	for i, cat := range o.Categories {
		if cat < 0 || int(cat) >= len(categoryNames) {
			return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidArgument, int(cat))
		}
		names[i] = cat.String()
	}
	q.Set("categories", strings.Join(names, ","))

	if len(o.Categories) > 1 {
		match := o.MatchType
		if match == "" {
			match = MatchAny
		}
		if match != MatchAny && match != MatchAll {
			return nil, fmt.Errorf("%w: unknown match type %q", ErrInvalidArgument, match)
		}
		q.Set("matchType", string(match))
	}

	return q, nil
}

// Search scrapes the frontend's search results.
func (c *Client) Search(ctx context.Context, search string, opts SearchOptions) ([]Character, error) {
	q, err := opts.query(search)
	if err != nil {
		return nil, err
	}

	resp, err := c.getPage(ctx, "search", c.frontendURL+"/?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, upstreamError("failed to perform search", resp)
	}

	payload := string(resp.Body)
	fragment, err := c.extractor.LocateFragment(payload, rsc.CharactersMarker)
	if err != nil {
		se := newServiceError("failed to perform search: results are missing", resp)
		se.Cause = err
		return nil, se
	}

	var result struct {
		Characters []Character `json:"characters"`
	}
	if err := decodeFirst(fragment, &result); err != nil {
		se := newServiceError("failed to perform search: malformed results", resp)
		se.Cause = err
		return nil, se
	}

	for i := range result.Characters {
		c.resolveReferences(&result.Characters[i], payload)
	}

	c.logger.WithField("count", len(result.Characters)).Debug("Search completed")

	if result.Characters == nil {
		result.Characters = []Character{}
	}
	return result.Characters, nil
}

// GetCharacterInfo scrapes a character's chat page.
func (c *Client) GetCharacterInfo(ctx context.Context, characterID string) (*Character, error) {
	if characterID == "" {
		return nil, fmt.Errorf("%w: character id is required", ErrInvalidArgument)
	}

	resp, err := c.getPage(ctx, "character_info", c.frontendURL+"/chat/"+url.PathEscape(characterID))
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, upstreamError("failed to get character info", resp)
	}

	payload := string(resp.Body)
	fragment, err := c.extractor.LocateFragment(payload, rsc.SuccessMarker)
	if err != nil {
		se := newServiceError("failed to get character info: character data is missing", resp)
		se.Cause = err
		return nil, se
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Character *Character `json:"character"`
		} `json:"data"`
	}
	if err := decodeFirst(fragment, &result); err != nil {
		se := newServiceError("failed to get character info: malformed character data", resp)
		se.Cause = err
		return nil, se
	}
	if !result.Success || result.Data.Character == nil {
		return nil, newServiceError("character not found", resp)
	}

	c.resolveReferences(result.Data.Character, payload)
	return result.Data.Character, nil
}

func (c *Client) resolveReferences(ch *Character, payload string) {
	for _, field := range ch.stringFields() {
		if strings.HasPrefix(*field, rsc.ReferencePrefix) {
			*field = c.extractor.ResolveReference(*field, payload)
		}
	}
}

func (c *Client) getPage(ctx context.Context, op, target string) (*response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return c.do(op, req)
}

// decodeFirst decodes the first JSON value of s and ignores whatever follows.
func decodeFirst(s string, v any) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}
