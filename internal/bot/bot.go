// Package bot runs one Telegram bot session per account: it watches
// the account's source channels, pushes their posts through the
// cleaning and translation pipeline, and republishes them to the
// routed destination with an attribution footer.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"

	"mirror_bot/internal/cache"
	"mirror_bot/internal/config"
	"mirror_bot/internal/debloat"
	"mirror_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// processor cleans and translates one inbound message.
type processor interface {
	Process(ctx context.Context, msg debloat.Inbound) (string, error)
}

// destinationRouter resolves the destination channel for a post.
type destinationRouter interface {
	Destination(ctx context.Context, text string, sourceID int64) (int64, error)
}

// Bot is one account's session. Multiple Bots share the storage, cache,
// pipeline, and router; each watches only its own sources.
type Bot struct {
	api      telegramAPI
	store    storage.Storage
	cache    *cache.Cache
	pipeline processor
	router   destinationRouter
	cfg      *config.Config
	log      *slog.Logger

	accountName string
	watchedMu   sync.RWMutex
	watched     map[int64]bool
	locks       *keyedLock
}

// New creates a Bot session for the given account token and watched
// source set. The session doubles as the pipeline's reviewer, so the
// pipeline is assembled here.
func New(token, accountName string, sourceIDs []int64, store storage.Storage, c *cache.Cache,
	translator debloat.Translator, router destinationRouter, cfg *config.Config, log *slog.Logger) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	watched := make(map[int64]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		watched[id] = true
	}

	b := &Bot{
		api:         api,
		store:       store,
		cache:       c,
		router:      router,
		cfg:         cfg,
		log:         log.With("account", accountName),
		accountName: accountName,
		watched:     watched,
		locks:       newKeyedLock(),
	}
	b.pipeline = debloat.NewPipeline(c, translator, b, b.log)
	return b, nil
}

// Run starts the session's long-polling loop, blocking until ctx is
// cancelled. Each update is dispatched on its own goroutine so a slow
// translation or classification call never stalls the events behind
// it; the per-(chat,message) lock and the duplicate window keep
// concurrent deliveries of the same message safe.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChannelPost != nil:
		b.handleChannelPost(ctx, update.ChannelPost)
	case update.EditedChannelPost != nil:
		b.handleEditedChannelPost(ctx, update.EditedChannelPost)
	case update.Message != nil && update.Message.IsCommand():
		if !b.cfg.IsUserAllowed(update.Message.From.ID) {
			b.reply(update.Message.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "join":
		b.handleJoin(ctx, chatID, args)
	case "leave":
		b.handleLeave(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Available: /refresh, /join, /leave")
	}
}

// isWatched reports whether the session mirrors the given channel.
func (b *Bot) isWatched(chatID int64) bool {
	b.watchedMu.RLock()
	defer b.watchedMu.RUnlock()
	return b.watched[chatID]
}

// setWatched adds or removes a channel from the session's watch set.
func (b *Bot) setWatched(chatID int64, on bool) {
	b.watchedMu.Lock()
	defer b.watchedMu.Unlock()
	if on {
		b.watched[chatID] = true
	} else {
		delete(b.watched, chatID)
	}
}

// send delivers a message with a short retry on transient failures.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		msg, err = b.api.Send(c)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return msg, err
}

// SendMessage sends plain text to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// ForwardToReview forwards a quarantined message to the review channel.
func (b *Bot) ForwardToReview(ctx context.Context, chatID int64, messageID int) error {
	fwd := tgbotapi.NewForward(b.cfg.ReviewChannel, chatID, messageID)
	if _, err := b.send(ctx, fwd); err != nil {
		return fmt.Errorf("forward to review: %w", err)
	}
	return nil
}

// SendToReview posts plain text to the review channel.
func (b *Bot) SendToReview(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(b.cfg.ReviewChannel, text)
	msg.DisableWebPagePreview = true
	if _, err := b.send(ctx, msg); err != nil {
		return fmt.Errorf("send to review: %w", err)
	}
	return nil
}

// backup forwards the original message to the backup channel and
// returns the archived copy's message ID.
func (b *Bot) backup(ctx context.Context, msg *tgbotapi.Message) (int, error) {
	fwd := tgbotapi.NewForward(b.cfg.BackupChannel, msg.Chat.ID, msg.MessageID)
	archived, err := b.send(ctx, fwd)
	if err != nil {
		return 0, fmt.Errorf("backup forward: %w", err)
	}
	return archived.MessageID, nil
}
