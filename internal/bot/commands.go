package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	if err := b.cache.RefreshAll(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	sources, destinations, regions := b.cache.Counts()
	b.reply(chatID, fmt.Sprintf("Cache refreshed.\nSources: %d\nDestinations: %d\nRegions: %d",
		sources, destinations, regions))
}

func (b *Bot) handleJoin(ctx context.Context, chatID int64, args string) {
	id, err := parseChannelArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /join <channel_id>")
		return
	}

	if err := b.store.SetSourceActive(ctx, id, true); err != nil {
		b.reply(chatID, fmt.Sprintf("/join %d FAILED: %v", id, err))
		return
	}
	if err := b.cache.RefreshSources(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("/join %d activated, but cache refresh failed: %v", id, err))
		return
	}

	b.setWatched(id, true)
	b.log.Info("source activated", "channel_id", id)
	b.reply(chatID, fmt.Sprintf("/join %d SUCCESS", id))
}

func (b *Bot) handleLeave(ctx context.Context, chatID int64, args string) {
	id, err := parseChannelArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /leave <channel_id>")
		return
	}

	if err := b.store.SetSourceActive(ctx, id, false); err != nil {
		b.reply(chatID, fmt.Sprintf("/leave %d FAILED: %v", id, err))
		return
	}
	if err := b.cache.RefreshSources(ctx); err != nil {
		b.reply(chatID, fmt.Sprintf("/leave %d deactivated, but cache refresh failed: %v", id, err))
		return
	}

	b.setWatched(id, false)
	b.log.Info("source deactivated", "channel_id", id)
	b.reply(chatID, fmt.Sprintf("/leave %d SUCCESS", id))
}

func parseChannelArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("channel ID is required")
	}
	return strconv.ParseInt(strings.Fields(s)[0], 10, 64)
}
