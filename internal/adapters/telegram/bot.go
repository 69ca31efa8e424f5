package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"atrSignalBot/internal/domain"
	"atrSignalBot/internal/ports"

	tele "gopkg.in/telebot.v3"
)

// Controller is the part of the signal service driven by bot commands.
type Controller interface {
	Resume(ctx context.Context) error
	Pause()
	Paused() bool
	ActiveParameters() *domain.ParameterSet
}

// registrar is the part of *tele.Bot used to wire command handlers.
type registrar interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

// Bot owns the Telegram client, delivering alerts and serving commands.
type Bot struct {
	bot    *tele.Bot
	logger ports.Logger
}

// BotConfig holds the Telegram connection settings.
type BotConfig struct {
	Token       string
	PollTimeout time.Duration
	Offline     bool // Skip the getMe call; used by tests
	Logger      ports.Logger
}

// NewBot connects to the Telegram API.
func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for telegram bot")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is empty: %w", ports.ErrConfigurationError)
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			cfg.Logger.Error(context.Background(), err, "Telegram handler failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &Bot{bot: b, logger: cfg.Logger}, nil
}

// Notifier returns a notifier posting to channel through this bot.
func (b *Bot) Notifier(channel Channel) (*Notifier, error) {
	return NewNotifier(b.bot, channel, b.logger)
}

// RegisterCommands wires /start, /stop and /status to ctrl.
func (b *Bot) RegisterCommands(ctx context.Context, ctrl Controller, adminIDs []int64) {
	registerCommands(ctx, b.bot, ctrl, adminIDs, b.logger)
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() {
	b.logger.Info(context.Background(), "Telegram bot started")
	b.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	b.bot.Stop()
}

func registerCommands(ctx context.Context, r registrar, ctrl Controller, adminIDs []int64, logger ports.Logger) {
	guard := adminOnly(adminIDs)

	r.Handle("/start", func(c tele.Context) error {
		return c.Send(startReply(ctx, ctrl, logger))
	}, guard)
	r.Handle("/stop", func(c tele.Context) error {
		ctrl.Pause()
		logger.Info(ctx, "Signal evaluation paused by command")
		return c.Send("Signal evaluation paused. Send /start to resume.")
	}, guard)
	r.Handle("/status", func(c tele.Context) error {
		return c.Send(statusReply(ctrl))
	}, guard)
}

func startReply(ctx context.Context, ctrl Controller, logger ports.Logger) string {
	if !ctrl.Paused() {
		return "Signal evaluation is already running.\n" + statusReply(ctrl)
	}
	if err := ctrl.Resume(ctx); err != nil {
		logger.Error(ctx, err, "Resume by command failed")
		return fmt.Sprintf("Could not resume signal evaluation: %v", err)
	}
	logger.Info(ctx, "Signal evaluation resumed by command")
	return "Signal evaluation resumed.\n" + statusReply(ctrl)
}

func statusReply(ctrl Controller) string {
	var sb strings.Builder
	if ctrl.Paused() {
		sb.WriteString("Status: paused\n")
	} else {
		sb.WriteString("Status: running\n")
	}

	set := ctrl.ActiveParameters()
	if set.Len() == 0 {
		sb.WriteString("No trading today, trade parameters are empty.")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Active parameters (%d, computed %s):\n", set.Len(), set.ComputedAt.UTC().Format(time.RFC3339))
	params := append([]domain.TradeParameter(nil), set.Parameters...)
	sort.Slice(params, func(i, j int) bool {
		if params[i].Symbol != params[j].Symbol {
			return params[i].Symbol < params[j].Symbol
		}
		return params[i].Timeframe < params[j].Timeframe
	})
	for _, p := range params {
		fmt.Fprintf(&sb, "%s %s  TP x%g  SL x%g\n", p.Symbol, p.Timeframe, p.TPMultiplier, p.SLMultiplier)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// adminOnly drops commands from senders outside ids. An empty list allows everyone.
func adminOnly(ids []int64) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || !isAdmin(ids, sender.ID) {
				return nil
			}
			return next(c)
		}
	}
}

func isAdmin(ids []int64, id int64) bool {
	if len(ids) == 0 {
		return true
	}
	for _, a := range ids {
		if a == id {
			return true
		}
	}
	return false
}
