package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sakura-go/sakura/internal/config"
	"github.com/sakura-go/sakura/internal/i18n"
	"github.com/sakura-go/sakura/internal/middleware"
	"github.com/sakura-go/sakura/internal/models"
	"github.com/sakura-go/sakura/internal/services/cache"
	"github.com/sakura-go/sakura/pkg/logger"
	"github.com/sakura-go/sakura/pkg/sakura"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// SakuraClient is the part of *sakura.Client the gateway calls.
type SakuraClient interface {
	SendLoginEmail(ctx context.Context, email string) (*sakura.SignInAttempt, error)
	PollLogin(ctx context.Context, attempt *sakura.SignInAttempt) (*sakura.AuthorizedUser, error)
	Search(ctx context.Context, search string, opts sakura.SearchOptions) ([]sakura.Character, error)
	GetCharacterInfo(ctx context.Context, characterID string) (*sakura.Character, error)
	CreateChat(ctx context.Context, sessionID, refreshToken string, character *sakura.Character, firstMessage, locale string) (*sakura.ChatResponse, error)
	SendMessage(ctx context.Context, sessionID, refreshToken, chatID, message, locale string) (*sakura.Message, error)
}

// Gateway serves the client operations as a local JSON API
type Gateway struct {
	client      SakuraClient
	config      *config.Config
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewGateway creates a new gateway
func NewGateway(
	client SakuraClient,
	cfg *config.Config,
	cache cache.Service,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *Gateway {
	return &Gateway{
		client:      client,
		config:      cfg,
		cache:       cache,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		localizer:   localizer,
		logger:      logger,
	}
}

// Router builds the gateway routes
func (g *Gateway) Router() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(g.handleNotFound)
	router.Use(middleware.RequestID, g.metrics.Instrument, middleware.Logging(g.logger))

	router.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)

	metricsCfg := g.config.Monitoring.Metrics
	if metricsCfg.Enabled && metricsCfg.Port == 0 {
		router.Handle(metricsCfg.Path, middleware.Handler()).Methods(http.MethodGet)
	}

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.RateLimit(g.rateLimiter, g.metrics, g.handleRateLimited))

	v1.HandleFunc("/login", g.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/login/poll", g.handlePollLogin).Methods(http.MethodPost)
	v1.HandleFunc("/characters", g.handleSearch).Methods(http.MethodGet)
	v1.HandleFunc("/characters/{id}", g.handleCharacter).Methods(http.MethodGet)
	v1.HandleFunc("/chats", g.handleCreateChat).Methods(http.MethodPost)
	v1.HandleFunc("/chats/{chatId}/messages", g.handleSendMessage).Methods(http.MethodPost)

	return router
}

// Serve runs the gateway until ctx is done
func (g *Gateway) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", g.config.Gateway.Port),
		Handler:      g.Router(),
		ReadTimeout:  g.config.Gateway.ReadTimeout,
		WriteTimeout: g.config.Gateway.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.WithField("addr", server.Addr).Info("Gateway listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down gateway: %w", err)
	}

	g.logger.Info("Gateway stopped")
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Time: time.Now().UTC()})
}

func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	g.writeMessage(w, r, http.StatusNotFound, "not_found", i18n.MsgNotFound, nil)
}

func (g *Gateway) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	g.writeMessage(w, r, http.StatusTooManyRequests, "rate_limited", i18n.MsgRateLimitExceeded, nil)
}

// lang picks the response language from Accept-Language.
func (g *Gateway) lang(r *http.Request) string {
	return g.localizer.Match(r.Header.Get("Accept-Language"))
}

func (g *Gateway) log(r *http.Request, operation string) *logrus.Entry {
	return logger.WithOperation(g.logger, operation, middleware.GetRequestID(r.Context()))
}

func (g *Gateway) writeMessage(w http.ResponseWriter, r *http.Request, status int, code, messageID string, data map[string]interface{}) {
	writeJSON(w, status, models.ErrorResponse{
		Error:     g.localizer.Get(g.lang(r), messageID, data),
		Code:      code,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

// writeError maps client errors onto gateway responses.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	lang := g.lang(r)
	resp := models.ErrorResponse{RequestID: middleware.GetRequestID(r.Context())}
	status := http.StatusInternalServerError

	var se *sakura.ServiceError
	switch {
	case errors.Is(err, sakura.ErrInvalidArgument):
		status = http.StatusBadRequest
		resp.Code = "invalid_argument"
		resp.Error = g.localizer.Get(lang, i18n.MsgInvalidArgument, map[string]interface{}{"Details": err.Error()})
	case errors.Is(err, sakura.ErrNotAuthorized):
		status = http.StatusUnauthorized
		resp.Code = "not_authorized"
		resp.Error = g.localizer.Get(lang, i18n.MsgNotAuthorized, nil)
	case errors.As(err, &se):
		status = http.StatusBadGateway
		resp.Code = "upstream_error"
		resp.Error = g.localizer.Get(lang, i18n.MsgUpstreamError, nil) + " " + se.Error()
		resp.UpstreamStatus = se.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		resp.Code = "timeout"
		resp.Error = g.localizer.Get(lang, i18n.MsgError, nil)
	default:
		resp.Code = "internal"
		resp.Error = g.localizer.Get(lang, i18n.MsgError, nil)
	}

	entry := g.log(r, operation).WithError(err).WithField("status", status)
	if se != nil {
		entry = entry.WithField("upstream_status", se.StatusCode)
		entry.WithField("details", se.Details).Debug("Upstream response")
	}
	if status >= http.StatusInternalServerError {
		entry.Error("Operation failed")
	} else {
		entry.Warn("Operation rejected")
	}

	writeJSON(w, status, resp)
}

func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		g.log(r, "decode").WithError(err).Debug("Invalid request body")
		g.writeMessage(w, r, http.StatusBadRequest, "invalid_body", i18n.MsgInvalidBody, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsHTML(r *http.Request) bool {
	return r.URL.Query().Get("format") == "html"
}
