package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/sakura-go/sakura/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
	matcher         language.Matcher
	tags            []language.Tag
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// The default language goes first so the matcher falls back to it.
	langs := []string{cfg.DefaultLanguage}
	for _, lang := range cfg.Languages {
		if lang != cfg.DefaultLanguage {
			langs = append(langs, lang)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("invalid language %s: %w", lang, err)
		}
		if _, err := bundle.LoadMessageFileFS(locales, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
		tags = append(tags, tag)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
		matcher:         language.NewMatcher(tags),
		tags:            tags,
	}, nil
}

// Match picks the best configured language for an Accept-Language header.
func (l *Localizer) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return l.defaultLanguage
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return l.defaultLanguage
	}
	_, idx, confidence := l.matcher.Match(prefs...)
	if confidence == language.No {
		return l.defaultLanguage
	}
	base, _ := l.tags[idx].Base()
	return base.String()
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgLoginEmailSent    = "login_email_sent"
	MsgLoginWaiting      = "login_waiting"
	MsgLoginCompleted    = "login_completed"
	MsgLoginPending      = "login_pending"
	MsgChatCreated       = "chat_created"
	MsgMissingLogin      = "missing_login"
	MsgInvalidArgument   = "invalid_argument"
	MsgInvalidBody       = "invalid_body"
	MsgNotAuthorized     = "not_authorized"
	MsgUpstreamError     = "upstream_error"
	MsgRateLimitExceeded = "rate_limit_exceeded"
	MsgNotFound          = "not_found"
	MsgError             = "error"
)
