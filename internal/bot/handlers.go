package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mirror_bot/internal/debloat"
	"mirror_bot/internal/model"
)

// editMaxAge is how old a post may be for its edits to still be
// mirrored. Channels touch up old posts for unrelated reasons;
// mirroring those is noise. The age is the post's original date, not
// the edit's (which is always recent for a live update).
const editMaxAge = 7 * 24 * time.Hour

func (b *Bot) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isWatched(msg.Chat.ID) || msg.ForwardDate != 0 {
		return
	}
	if msg.Text == "" && msg.Caption == "" {
		// Captionless members of a media group ride along with the
		// captioned one; nothing to process here.
		return
	}
	if b.cache.IsDuplicateMessage(msg.Chat.ID, msg.MessageID) {
		b.log.Info("duplicate delivery suppressed", "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
		return
	}

	unlock := b.locks.Lock(msg.Chat.ID, msg.MessageID)
	defer unlock()

	if err := b.createPost(ctx, msg); err != nil {
		b.log.Error("create post", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
	}
}

func (b *Bot) handleEditedChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isWatched(msg.Chat.ID) || msg.ForwardDate != 0 {
		return
	}
	if msg.Text == "" && msg.Caption == "" {
		return
	}
	if time.Since(time.Unix(int64(msg.Date), 0)) > editMaxAge {
		b.log.Info("ignoring edit of old post", "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
		return
	}

	unlock := b.locks.Lock(msg.Chat.ID, msg.MessageID)
	defer unlock()

	post, err := b.store.GetPost(ctx, msg.Chat.ID, msg.MessageID)
	if err != nil {
		b.log.Error("look up post for edit", "error", err)
		return
	}
	if post == nil {
		// The original was never published (or got lost); treat the
		// edit as a fresh post.
		if err := b.createPost(ctx, msg); err != nil {
			b.log.Error("create post from edit", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
		}
		return
	}

	if err := b.editPost(ctx, msg, post); err != nil {
		b.log.Error("edit post", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
	}
}

// createPost runs the full publish flow for one new message: clean and
// translate, archive the original, route, format, send, and record the
// Post row that later edits and replies resolve against.
func (b *Bot) createPost(ctx context.Context, msg *tgbotapi.Message) error {
	src, err := b.cache.GetSource(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}

	cleaned, isCaption, err := b.clean(ctx, msg)
	if err != nil {
		if errors.Is(err, debloat.ErrRejected) {
			b.log.Info("post rejected", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "reason", err)
			return nil
		}
		return err
	}

	backupID, err := b.backup(ctx, msg)
	if err != nil {
		return err
	}

	// Media from sources marked no-spread is archived but never
	// republished.
	if isCaption && !src.IsSpread {
		b.log.Info("source not spread, archived only", "chat_id", msg.Chat.ID)
		return nil
	}

	dest, err := b.router.Destination(ctx, cleaned, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}
	if dest == 0 {
		b.log.Warn("no destination, not publishing", "chat_id", msg.Chat.ID)
		return nil
	}

	text := b.format(ctx, cleaned, msg, src, backupID, dest)
	replyID := b.resolveReply(ctx, msg)

	sent, err := b.publish(ctx, msg, dest, text, replyID, isCaption)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	post := &model.Post{
		Destination:     dest,
		MessageID:       sent.MessageID,
		SourceChannelID: msg.Chat.ID,
		SourceMessageID: msg.MessageID,
		BackupID:        backupID,
		ReplyID:         replyID,
		MessageText:     text,
		FileID:          fileID(msg),
	}
	if err := b.store.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("record post: %w", err)
	}

	b.log.Info("post published", "chat_id", msg.Chat.ID, "message_id", msg.MessageID,
		"destination", dest, "published_id", sent.MessageID)
	return nil
}

// editPost re-cleans the edited message and updates the published copy
// in place, keeping the original backup reference.
func (b *Bot) editPost(ctx context.Context, msg *tgbotapi.Message, post *model.Post) error {
	src, err := b.cache.GetSource(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("get source: %w", err)
	}

	cleaned, isCaption, err := b.clean(ctx, msg)
	if err != nil {
		if errors.Is(err, debloat.ErrRejected) {
			b.log.Info("edited post rejected", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "reason", err)
			return nil
		}
		return err
	}

	text := b.format(ctx, cleaned, msg, src, post.BackupID, post.Destination)

	var edit tgbotapi.Chattable
	if isCaption {
		c := tgbotapi.NewEditMessageCaption(post.Destination, post.MessageID, text)
		c.ParseMode = tgbotapi.ModeHTML
		edit = c
	} else {
		c := tgbotapi.NewEditMessageText(post.Destination, post.MessageID, text)
		c.ParseMode = tgbotapi.ModeHTML
		c.DisableWebPagePreview = true
		edit = c
	}

	if _, err := b.send(ctx, edit); err != nil {
		// Same text after re-translation is a no-op, not a failure.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit published message: %w", err)
	}

	b.log.Info("post edited", "chat_id", msg.Chat.ID, "message_id", msg.MessageID,
		"destination", post.Destination, "published_id", post.MessageID)
	return nil
}

func (b *Bot) clean(ctx context.Context, msg *tgbotapi.Message) (string, bool, error) {
	raw, isCaption := messageHTML(msg)
	cleaned, err := b.pipeline.Process(ctx, debloat.Inbound{
		ChatID:       msg.Chat.ID,
		MessageID:    msg.MessageID,
		ChatUsername: msg.Chat.UserName,
		Text:         raw,
		IsCaption:    isCaption,
		Link:         MessageLink(msg),
	})
	return cleaned, isCaption, err
}

func (b *Bot) format(ctx context.Context, cleaned string, msg *tgbotapi.Message, src model.SourceDisplay, backupID int, dest int64) string {
	footer, _, err := b.cache.GetFooter(ctx, dest)
	if err != nil {
		b.log.Error("get footer", "destination", dest, "error", err)
		footer = ""
	}
	return FormatPost(cleaned, MessageLink(msg), src, backupID, footer, FooterLinks{
		BackupChannelName:  b.cfg.BackupChannelName,
		SourcesChannelName: b.cfg.SourcesChannelName,
	})
}

// resolveReply maps a reply in the source channel onto the published
// copy of the replied-to message, when one exists.
func (b *Bot) resolveReply(ctx context.Context, msg *tgbotapi.Message) int {
	if msg.ReplyToMessage == nil {
		return 0
	}
	post, err := b.store.GetPost(ctx, msg.Chat.ID, msg.ReplyToMessage.MessageID)
	if err != nil {
		b.log.Error("resolve reply", "error", err)
		return 0
	}
	if post == nil {
		return 0
	}
	return post.MessageID
}

func (b *Bot) publish(ctx context.Context, msg *tgbotapi.Message, dest int64, text string, replyID int, isCaption bool) (tgbotapi.Message, error) {
	if isCaption {
		c := tgbotapi.NewCopyMessage(dest, msg.Chat.ID, msg.MessageID)
		c.Caption = text
		c.ParseMode = tgbotapi.ModeHTML
		c.ReplyToMessageID = replyID
		return b.send(ctx, c)
	}

	m := tgbotapi.NewMessage(dest, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	m.ReplyToMessageID = replyID
	return b.send(ctx, m)
}

func fileID(msg *tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		return msg.Video.FileID
	case msg.Animation != nil:
		return msg.Animation.FileID
	default:
		return ""
	}
}
