package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"mirror_bot/internal/model"
	"mirror_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListAccounts returns all configured bot accounts.
func (s *SQLite) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, token, description FROM accounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Token, &a.Description); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListSourceIDs returns the channel IDs of all active sources owned by
// the given account. Inactive sources are excluded from the watch set.
func (s *SQLite) ListSourceIDs(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id FROM sources WHERE account_id = ? AND is_active = 1 ORDER BY channel_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query source ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const sourceColumns = `channel_id, channel_name, display_name, bias, destination,
	invite, username, account_id, description, rating, detail_id, is_spread, is_active`

// CreateSource inserts a new source channel.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ChannelID, src.ChannelName, nullString(src.DisplayName), nullString(src.Bias),
		nullInt(src.Destination), nullString(src.Invite), nullString(src.Username),
		nullInt(src.AccountID), nullString(src.Description), src.Rating,
		nullInt(src.DetailID), boolToInt(src.IsSpread), boolToInt(src.IsActive),
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

// CreatePattern inserts a bloat pattern for a channel.
func (s *SQLite) CreatePattern(ctx context.Context, channelID int64, pattern string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bloats (channel_id, pattern) VALUES (?, ?)`,
		channelID, pattern,
	)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// CreateDestination inserts a destination channel.
func (s *SQLite) CreateDestination(ctx context.Context, dest *model.Destination) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO destinations (channel_id, name, group_id, footer) VALUES (?, ?, ?, ?)`,
		dest.ChannelID, dest.Name, nullInt(dest.GroupID), nullString(dest.Footer),
	)
	if err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

// GetSource returns a single source by its channel ID.
func (s *SQLite) GetSource(ctx context.Context, channelID int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE channel_id = ?`, channelID,
	)
	return scanSource(row)
}

// ListSources returns all sources.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// SetSourceActive marks a source as watched or unwatched.
func (s *SQLite) SetSourceActive(ctx context.Context, channelID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET is_active = ? WHERE channel_id = ?`,
		boolToInt(active), channelID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("source %d not found", channelID)
	}
	return nil
}

// ListPatterns returns the bloat patterns configured for a channel.
func (s *SQLite) ListPatterns(ctx context.Context, channelID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern FROM bloats WHERE channel_id = ? ORDER BY pattern`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// ListDestinations returns all destination channels.
func (s *SQLite) ListDestinations(ctx context.Context) ([]model.Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, name, group_id, footer FROM destinations ORDER BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dests []model.Destination
	for rows.Next() {
		var d model.Destination
		var groupID sql.NullInt64
		var footer sql.NullString
		if err := rows.Scan(&d.ChannelID, &d.Name, &groupID, &footer); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		d.GroupID = groupID.Int64
		d.Footer = footer.String
		dests = append(dests, d)
	}
	return dests, rows.Err()
}

// GetFooter returns the footer configured for a destination channel.
// The second return value reports whether a footer is set, so an absent
// footer can be distinguished from an empty one.
func (s *SQLite) GetFooter(ctx context.Context, channelID int64) (string, bool, error) {
	var footer sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT footer FROM destinations WHERE channel_id = ?`, channelID,
	).Scan(&footer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query footer: %w", err)
	}
	return footer.String, footer.Valid, nil
}

// GetPost returns the published post for the given origin message, or
// nil when the message has never been published.
func (s *SQLite) GetPost(ctx context.Context, sourceChannelID int64, sourceMessageID int) (*model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT destination, message_id, source_channel_id, source_message_id,
		        backup_id, reply_id, message_text, file_id, created_at
		 FROM posts WHERE source_channel_id = ? AND source_message_id = ?`,
		sourceChannelID, sourceMessageID,
	)

	var p model.Post
	var replyID sql.NullInt64
	var text, fileID sql.NullString
	var created string
	err := row.Scan(&p.Destination, &p.MessageID, &p.SourceChannelID, &p.SourceMessageID,
		&p.BackupID, &replyID, &text, &fileID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.ReplyID = int(replyID.Int64)
	p.MessageText = text.String
	p.FileID = fileID.String
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	return &p, nil
}

// CreatePost inserts a new post record. Inserting a second post for the
// same (source channel, source message) pair violates the uniqueness
// constraint and returns an error.
func (s *SQLite) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC().Format(timeLayout)
	var replyID any
	if post.ReplyID != 0 {
		replyID = post.ReplyID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (destination, message_id, source_channel_id, source_message_id,
		                    backup_id, reply_id, message_text, file_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Destination, post.MessageID, post.SourceChannelID, post.SourceMessageID,
		post.BackupID, replyID, post.MessageText, post.FileID, now,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	post.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var s model.Source
	var displayName, bias, invite, username, description sql.NullString
	var destination, accountID, rating, detailID sql.NullInt64
	var isSpread, isActive int
	err := row.Scan(&s.ChannelID, &s.ChannelName, &displayName, &bias, &destination,
		&invite, &username, &accountID, &description, &rating, &detailID, &isSpread, &isActive)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	s.DisplayName = displayName.String
	s.Bias = bias.String
	s.Destination = destination.Int64
	s.Invite = invite.String
	s.Username = username.String
	s.AccountID = accountID.Int64
	s.Description = description.String
	s.Rating = int(rating.Int64)
	s.DetailID = detailID.Int64
	s.IsSpread = isSpread == 1
	s.IsActive = isActive == 1
	return &s, nil
}
