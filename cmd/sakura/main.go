package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakura-go/sakura/internal/config"
	"github.com/sakura-go/sakura/internal/handlers"
	"github.com/sakura-go/sakura/internal/i18n"
	"github.com/sakura-go/sakura/internal/middleware"
	"github.com/sakura-go/sakura/internal/services/cache"
	"github.com/sakura-go/sakura/pkg/logger"
	"github.com/sakura-go/sakura/pkg/sakura"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: sakura [-config path] [-env path] <command> [flags]

Commands:
  login   -email <address>                    sign in with an email link
  search  [-q text] [-sfw] [-categories a,b] [-match any|all]
  info    -id <character id>
  chat    -character <id> | -chat <id>  -message <text> [-locale tag]
  serve                                       run the HTTP gateway
`

type app struct {
	cfg       *config.Config
	client    *sakura.Client
	metrics   *middleware.Metrics
	localizer *i18n.Localizer
	log       *logrus.Logger
	lang      string
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read %s: %v\n", *envFile, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	metrics := middleware.NewMetrics()
	opts := cfg.ClientOptions()
	opts.Observer = metrics

	client := sakura.New(opts, log)
	defer client.Close()

	a := &app{
		cfg:       cfg,
		client:    client,
		metrics:   metrics,
		localizer: localizer,
		log:       log,
		lang:      cfg.I18n.DefaultLanguage,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command, args := flag.Arg(0), flag.Args()[1:]
	var runErr error
	switch command {
	case "login":
		runErr = a.login(ctx, args)
	case "search":
		runErr = a.search(ctx, args)
	case "info":
		runErr = a.info(ctx, args)
	case "chat":
		runErr = a.chat(ctx, args)
	case "serve":
		runErr = a.serve(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if runErr != nil {
		a.fail(command, runErr)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address to send the sign-in link to")
	_ = fs.Parse(args)

	attempt, err := a.client.SendLoginEmail(ctx, *email)
	if err != nil {
		return err
	}
	a.metrics.RecordLogin("sent")

	wait := a.cfg.WaitOptions()
	a.say(i18n.MsgLoginEmailSent, map[string]interface{}{"Email": attempt.Email})
	a.say(i18n.MsgLoginWaiting, map[string]interface{}{
		"Timeout": time.Duration(wait.MaxAttempts) * wait.Interval,
	})

	user, err := a.client.WaitForLogin(ctx, attempt, wait)
	if err != nil {
		a.metrics.RecordLogin("failed")
		return err
	}
	a.metrics.RecordLogin("completed")

	a.say(i18n.MsgLoginCompleted, map[string]interface{}{"Username": user.Username})
	return printJSON(user)
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("q", "", "Search text")
	sfw := fs.Bool("sfw", false, "Only return SFW characters")
	categories := fs.String("categories", "", "Comma separated categories")
	match := fs.String("match", "", "How categories combine: any or all")
	_ = fs.Parse(args)

	opts := sakura.SearchOptions{SFWOnly: *sfw, MatchType: sakura.MatchType(strings.ToLower(*match))}
	if *categories != "" {
		for _, name := range strings.Split(*categories, ",") {
			cat, err := sakura.ParseCategory(name)
			if err != nil {
				return err
			}
			opts.Categories = append(opts.Categories, cat)
		}
	}

	characters, err := a.client.Search(ctx, *query, opts)
	if err != nil {
		return err
	}
	return printJSON(characters)
}

func (a *app) info(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	id := fs.String("id", "", "Character id")
	_ = fs.Parse(args)

	character, err := a.client.GetCharacterInfo(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(character)
}

// chat opens a chat with -character or continues one with -chat, using the
// saved login from the config or environment.
func (a *app) chat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	characterID := fs.String("character", "", "Character to open a chat with")
	chatID := fs.String("chat", "", "Existing chat to continue")
	message := fs.String("message", "", "Message to send")
	locale := fs.String("locale", a.cfg.Sakura.Locale, "Reply locale")
	_ = fs.Parse(args)

	sid, rt := a.cfg.Sakura.SessionID, a.cfg.Sakura.RefreshToken
	if sid == "" || rt == "" {
		return errors.New(a.localizer.Get(a.lang, i18n.MsgMissingLogin, nil))
	}
	if (*characterID == "") == (*chatID == "") {
		return fmt.Errorf("%w: exactly one of -character and -chat is required", sakura.ErrInvalidArgument)
	}

	if *chatID != "" {
		reply, err := a.client.SendMessage(ctx, sid, rt, *chatID, *message, *locale)
		if err != nil {
			return err
		}
		return printJSON(reply)
	}

	character, err := a.client.GetCharacterInfo(ctx, *characterID)
	if err != nil {
		return err
	}
	chat, err := a.client.CreateChat(ctx, sid, rt, character, *message, *locale)
	if err != nil {
		return err
	}

	a.say(i18n.MsgChatCreated, map[string]interface{}{"ChatID": chat.ChatID})
	return printJSON(chat)
}

func (a *app) serve(ctx context.Context) error {
	metricsCfg := a.cfg.Monitoring.Metrics
	if metricsCfg.Enabled && metricsCfg.Port != 0 {
		go func() {
			a.log.WithFields(logrus.Fields{
				"port": metricsCfg.Port,
				"path": metricsCfg.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(metricsCfg.Port, metricsCfg.Path); err != nil {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	limiter := middleware.NewRateLimiter(&a.cfg.Gateway.RateLimit, a.log)
	defer limiter.Stop()

	gateway := handlers.NewGateway(
		a.client,
		a.cfg,
		cache.NewCache(&a.cfg.Cache, a.log),
		limiter,
		a.metrics,
		a.localizer,
		a.log,
	)

	// Warm the session so the first gateway request does not pay for it.
	if err := a.client.EnsureSession(ctx, false); err != nil {
		a.log.WithError(err).Warn("Failed to fetch session cookies, retrying on first request")
	}

	return gateway.Serve(ctx)
}

func (a *app) say(messageID string, data map[string]interface{}) {
	fmt.Fprintln(os.Stderr, a.localizer.Get(a.lang, messageID, data))
}

func (a *app) fail(command string, err error) {
	entry := a.log.WithError(err).WithField("command", command)

	var se *sakura.ServiceError
	if errors.As(err, &se) {
		entry = entry.WithField("upstream_status", se.StatusCode)
		entry.WithField("details", se.Details).Debug("Upstream response")
	}
	entry.Error("Command failed")

	switch {
	case errors.Is(err, sakura.ErrNotAuthorized):
		a.say(i18n.MsgNotAuthorized, nil)
	case errors.Is(err, sakura.ErrInvalidArgument):
		a.say(i18n.MsgInvalidArgument, map[string]interface{}{"Details": err.Error()})
	case se != nil:
		a.say(i18n.MsgUpstreamError, nil)
	}

	a.client.Close()
	os.Exit(1)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
