// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"mirror_bot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListSourceIDs(ctx context.Context, accountID int64) ([]int64, error)

	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, channelID int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	SetSourceActive(ctx context.Context, channelID int64, active bool) error

	CreatePattern(ctx context.Context, channelID int64, pattern string) error
	ListPatterns(ctx context.Context, channelID int64) ([]string, error)

	CreateDestination(ctx context.Context, dest *model.Destination) error
	ListDestinations(ctx context.Context) ([]model.Destination, error)
	GetFooter(ctx context.Context, channelID int64) (string, bool, error)

	GetPost(ctx context.Context, sourceChannelID int64, sourceMessageID int) (*model.Post, error)
	CreatePost(ctx context.Context, post *model.Post) error

	Close() error
}
