package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/chatmail/internal/accounts"
	"github.com/mixelka/chatmail/internal/config"
	"github.com/mixelka/chatmail/internal/core"
	"github.com/mixelka/chatmail/internal/event"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting chatmail engine")

	timeouts := core.Timeouts{
		IdleTimeout:     cfg.IMAPIdleTimeout,
		IdleDoneTimeout: cfg.IMAPIdleDoneTimeout,
		DialTimeout:     cfg.IMAPDialTimeout,
		PollInterval:    cfg.PollInterval,
	}

	manager, err := accounts.New(cfg.OSName, cfg.AccountsDir, timeouts, logger)
	if err != nil {
		logger.Error("failed to open accounts", "error", err)
		os.Exit(1)
	}
	logger.Info("accounts loaded", "ids", manager.GetAll())

	emitter := manager.GetEventEmitter()
	go func() {
		for {
			ev, ok := emitter.Recv()
			if !ok {
				return
			}
			logEvent(logger, ev)
		}
	}()

	manager.StartIO()

	// Setup graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range sigCh {
		if sig == syscall.SIGUSR1 {
			// Hint that the network likely came back.
			logger.Info("probing network")
			manager.MaybeNetwork()
			continue
		}
		logger.Info("received shutdown signal", "signal", sig)
		break
	}

	manager.StopIO()
	logger.Info("engine stopped")
}

func logEvent(logger *slog.Logger, ev event.Event) {
	switch ev.Kind {
	case event.KindMsgsChanged:
		logger.Info("messages changed", "account_id", ev.AccountID, "chat_id", ev.ChatID, "msg_id", ev.MsgID)
	case event.KindChatEphemeralTimerModified:
		logger.Info("ephemeral timer modified", "account_id", ev.AccountID, "chat_id", ev.ChatID, "timer", ev.Timer)
	case event.KindError:
		logger.Error(ev.Text, "account_id", ev.AccountID)
	case event.KindWarning:
		logger.Warn(ev.Text, "account_id", ev.AccountID)
	default:
		logger.Info(ev.Text, "account_id", ev.AccountID)
	}
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
