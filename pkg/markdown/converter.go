package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	// Character cards put {{char}} and {{user}} placeholders in their text.
	placeholderPattern = regexp.MustCompile(`\{\{\s*(char|user)\s*\}\}`)
	blankLinesPattern  = regexp.MustCompile(`\n{3,}`)
)

// Names fills the card placeholders. Empty names leave them as they are.
type Names struct {
	Char string
	User string
}

// ToHTML renders character or chat text as HTML. Raw HTML in the input is
// dropped.
func ToHTML(markdown string) string {
	return ToHTMLWithNames(markdown, Names{})
}

// ToHTMLWithNames renders like ToHTML after filling placeholders.
func ToHTMLWithNames(markdown string, names Names) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	markdown = fillPlaceholders(markdown, names)

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.SkipHTML | blackfriday.SkipImages | blackfriday.Safelink |
			blackfriday.NofollowLinks | blackfriday.NoreferrerLinks | blackfriday.HrefTargetBlank,
	})
	html := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak),
		blackfriday.WithRenderer(renderer),
	))

	html = blankLinesPattern.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}

func fillPlaceholders(text string, names Names) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := names.User
		if strings.Contains(match, "char") {
			name = names.Char
		}
		if name == "" {
			return match
		}
		return name
	})
}
