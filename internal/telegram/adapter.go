package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/radar"
	"github.com/user/marketradar/internal/types"
)

const (
	maxTelegramMessage = 4096
	// Prefix is the delivery prefix of chat targets, as in "telegram:12345".
	Prefix = "telegram:"
)

const helpText = `MarketRadar sends a research agent after prices for you.

/mission <goal> - start a mission
/status - list running missions
/stop <id> - stop a running mission

Any other message is taken as a mission goal.`

// Launcher starts and stops watched missions.
type Launcher interface {
	Begin(ctx context.Context, req radar.Request, observers ...mission.Observer) (*radar.Watch, error)
	Active() []types.MissionID
	Lookup(id types.MissionID) (*radar.Watch, bool)
	Stop(ctx context.Context, id types.MissionID) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter runs missions requested over Telegram and delivers their notices
// back to the chat.
type Adapter struct {
	api      *tgbotapi.BotAPI
	bot      sender
	launcher Launcher
	allowed  map[int64]bool
	defaults radar.Request
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Adapter)

// WithAllowedUsers restricts the bot to the given Telegram user ids. An
// empty list allows everyone.
func WithAllowedUsers(ids ...int64) Option {
	return func(a *Adapter) {
		for _, id := range ids {
			a.allowed[id] = true
		}
	}
}

// WithMissionDefaults sets max iterations and headless mode for missions
// started from chat.
func WithMissionDefaults(maxIterations int, headless bool) Option {
	return func(a *Adapter) {
		a.defaults.MaxIterations = maxIterations
		a.defaults.Headless = headless
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates a Telegram adapter.
func New(token string, launcher Launcher, opts ...Option) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := newAdapter(bot, launcher, opts...)
	a.api = bot
	return a, nil
}

func newAdapter(bot sender, launcher Launcher, opts ...Option) *Adapter {
	a := &Adapter{
		bot:      bot,
		launcher: launcher,
		allowed:  make(map[int64]bool),
		defaults: radar.Request{Headless: true},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins long-polling for Telegram updates. It returns when ctx is
// cancelled. Missions started from chat live as long as ctx.
func (a *Adapter) Start(ctx context.Context) {
	if a.api == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			return
		}
	}
}

// Deliver sends a notice to the chat named by target. It is registered with
// the delivery registry under Prefix.
func (a *Adapter) Deliver(target types.NotifyTarget, message string) error {
	chatID, err := ParseTarget(target)
	if err != nil {
		return err
	}
	return a.sendResponse(chatID, message)
}

// ParseTarget extracts the chat id from a "telegram:<chat>" target.
func ParseTarget(target types.NotifyTarget) (int64, error) {
	raw, ok := strings.CutPrefix(string(target), Prefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram target: %q", target)
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat %q: %w", raw, err)
	}
	return chatID, nil
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !a.authorized(msg.From) {
		a.reply(chatID, "Not authorized.")
		return
	}

	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}
	a.launch(ctx, chatID, msg.Text)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		a.reply(chatID, helpText)

	case "mission":
		if args == "" {
			a.reply(chatID, "Usage: /mission <goal>")
			return
		}
		a.launch(ctx, chatID, args)

	case "status":
		a.reply(chatID, a.status())

	case "stop":
		if args == "" {
			a.reply(chatID, "Usage: /stop <id>")
			return
		}
		id, err := a.resolve(args)
		if err != nil {
			a.reply(chatID, err.Error())
			return
		}
		if err := a.launcher.Stop(ctx, id); err != nil {
			a.logger.Warn("stop from telegram failed", "mission", id.Short(), "error", err)
			a.reply(chatID, fmt.Sprintf("Could not stop %s: %v", id.Short(), err))
			return
		}
		a.reply(chatID, fmt.Sprintf("⏹ Mission %s stopped.", id.Short()))

	default:
		a.reply(chatID, "Unknown command. Available: /mission, /status, /stop, /help")
	}
}

func (a *Adapter) launch(ctx context.Context, chatID int64, goal string) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		a.reply(chatID, helpText)
		return
	}

	req := a.defaults
	req.Goal = goal
	req.Source = "telegram"
	req.Notify = types.NewNotifyTarget("telegram", strconv.FormatInt(chatID, 10))

	w, err := a.launcher.Begin(ctx, req)
	if err != nil {
		a.logger.Error("start mission from telegram", "chat", chatID, "error", err)
		a.reply(chatID, fmt.Sprintf("Could not start the mission: %v", err))
		return
	}
	a.reply(chatID, fmt.Sprintf("🚀 Mission %s started: %s", w.Handle.ID.Short(), goal))
}

func (a *Adapter) status() string {
	ids := a.launcher.Active()
	if len(ids) == 0 {
		return "No missions running."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d mission(s) running:\n", len(ids))
	for _, id := range ids {
		w, ok := a.launcher.Lookup(id)
		if !ok {
			continue
		}
		elapsed := a.now().Sub(w.StartedAt).Round(time.Second)
		fmt.Fprintf(&b, "\n%s  %s  (%s)", id.Short(), w.Goal, elapsed)
	}
	return b.String()
}

// resolve matches a full id or a unique prefix among running missions.
func (a *Adapter) resolve(prefix string) (types.MissionID, error) {
	var matches []types.MissionID
	for _, id := range a.launcher.Active() {
		if string(id) == prefix {
			return id, nil
		}
		if strings.HasPrefix(string(id), prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no running mission matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d missions, use more characters", prefix, len(matches))
	}
}

func (a *Adapter) authorized(user *tgbotapi.User) bool {
	if len(a.allowed) == 0 {
		return true
	}
	return user != nil && a.allowed[user.ID]
}

func (a *Adapter) reply(chatID int64, text string) {
	if err := a.sendResponse(chatID, text); err != nil {
		a.logger.Warn("send message error", "chat", chatID, "error", err)
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most maxTelegramMessage runes.
func splitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		end := min(maxTelegramMessage, len(runes))
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}
