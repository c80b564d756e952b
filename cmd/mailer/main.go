// Package main is the entry point for the marketplace mailer.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shineum/artmarket-mailer/internal/config"
	"github.com/shineum/artmarket-mailer/internal/dispatch"
	"github.com/shineum/artmarket-mailer/internal/httpapi"
	"github.com/shineum/artmarket-mailer/internal/provider"
	"github.com/shineum/artmarket-mailer/internal/provider/ses"
	"github.com/shineum/artmarket-mailer/internal/provider/simulated"
	smtpprov "github.com/shineum/artmarket-mailer/internal/provider/smtp"
	"github.com/shineum/artmarket-mailer/internal/provider/stdout"
	"github.com/shineum/artmarket-mailer/internal/ratelimit"
	"github.com/shineum/artmarket-mailer/internal/store"
	mailertls "github.com/shineum/artmarket-mailer/internal/tls"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a dotenv file (ignored if missing)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	prov := selectProvider(ctx, cfg)
	limiter := ratelimit.New(ratelimit.Limits{
		Hourly: cfg.RateLimit.PerHour,
		Daily:  cfg.RateLimit.PerDay,
	})

	var extra []dispatch.Option
	var logs httpapi.LogReader
	if cfg.DatabaseConfigured() {
		db, dispatchLog := openDispatchLog(ctx, cfg.Database.URL, limiter)
		defer db.Close()
		extra = append(extra, dispatch.WithRecorder(dispatchLog))
		logs = dispatchLog
	}

	d := dispatch.New(prov, limiter, nil, dispatchOptions(cfg), extra...)

	srvCfg := httpapi.ServerConfig{
		ListenAddr: cfg.HTTP.Listen,
		Handler:    httpapi.NewHandler(d, logs, httpapi.NewAuthenticator(cfg.HTTP.Username, cfg.HTTP.Password)),
	}
	tlsMode := "disabled"
	if cfg.HTTP.TLS {
		srvCfg.TLSConfig, tlsMode, err = mailertls.Load(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		if err != nil {
			slog.Error("failed to setup TLS", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("starting artmarket-mailer",
		"listen", cfg.HTTP.Listen,
		"provider", prov.Name(),
		"auth_enabled", cfg.AuthEnabled(),
		"tls_mode", tlsMode,
		"dispatch_log", cfg.DatabaseConfigured(),
		"limit_per_hour", limiter.Limits().Hourly,
		"limit_per_day", limiter.Limits().Daily,
	)

	if err := httpapi.NewServer(srvCfg).ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("artmarket-mailer stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func dispatchOptions(cfg *config.Config) dispatch.Options {
	opts := dispatch.DefaultOptions()
	opts.From = cfg.FromHeader()
	opts.ReplyTo = cfg.Sender.ReplyTo
	opts.BatchSize = cfg.Bulk.BatchSize
	opts.BatchDelay = cfg.Bulk.BatchDelay
	opts.SendTimeout = cfg.Delivery.Timeout
	opts.MaxRetries = cfg.Delivery.MaxRetries
	opts.RetryBaseDelay = cfg.Delivery.RetryDelay

	opts.TemplateDefaults = map[string]any{}
	if cfg.Sender.FromName != "" {
		opts.TemplateDefaults["storeName"] = cfg.Sender.FromName
	}
	if cfg.Sender.ReplyTo != "" {
		opts.TemplateDefaults["supportEmail"] = cfg.Sender.ReplyTo
	}
	return opts
}

// openDispatchLog connects to the database, applies migrations and seeds the
// limiter with what was already sent in the current windows.
func openDispatchLog(ctx context.Context, url string, limiter *ratelimit.Limiter) (*sql.DB, *store.DispatchLog) {
	db, err := store.Open(ctx, url)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(url); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	log := store.NewDispatchLog(db)
	hour, day, err := log.WindowCounts(ctx, time.Now())
	if err != nil {
		slog.Warn("could not seed rate limiter from dispatch log", "error", err)
		return db, log
	}
	limiter.Seed(hour, day)
	slog.Info("rate limiter seeded from dispatch log", "sent_this_hour", hour, "sent_today", day)
	return db, log
}

// selectProvider chooses the delivery backend. PROVIDER takes precedence;
// otherwise SMTP is used when configured, then SES, then stdout.
func selectProvider(ctx context.Context, cfg *config.Config) provider.Provider {
	switch cfg.Provider {
	case "smtp":
		if !cfg.SMTPConfigured() {
			slog.Error("SMTP provider selected but SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD are required")
			os.Exit(1)
		}
		return newSMTP(cfg)

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("SES provider selected but SES_REGION and SES_SENDER are required")
			os.Exit(1)
		}
		return newSES(ctx, cfg)

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New()

	case "simulated":
		slog.Warn("using simulated provider; no mail will be delivered")
		return simulated.New(simulated.Config{})

	default:
		if cfg.SMTPConfigured() {
			return newSMTP(cfg)
		}
		if cfg.SESConfigured() {
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return stdout.New()
	}
}

func newSMTP(cfg *config.Config) provider.Provider {
	slog.Info("using SMTP provider",
		"host", cfg.SMTP.Host,
		"port", cfg.SMTP.Port,
		"secure", cfg.SMTP.Secure,
	)
	return smtpprov.New(smtpprov.Config{
		Host:          cfg.SMTP.Host,
		Port:          cfg.SMTP.Port,
		Secure:        cfg.SMTP.Secure,
		Username:      cfg.SMTP.Username,
		Password:      cfg.SMTP.Password,
		From:          cfg.FromHeader(),
		SkipTLSVerify: cfg.SMTP.SkipTLSVerify,
	})
}

func newSES(ctx context.Context, cfg *config.Config) provider.Provider {
	slog.Info("using AWS SES provider",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(ctx, ses.Config{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		slog.Error("failed to create SES provider", "error", err)
		os.Exit(1)
	}
	return p
}
