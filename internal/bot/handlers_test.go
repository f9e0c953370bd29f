package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"mirror_bot/internal/cache"
	"mirror_bot/internal/config"
	"mirror_bot/internal/debloat"
	"mirror_bot/internal/model"
	"mirror_bot/internal/storage"
)

const (
	testSource  = int64(-1001000000001)
	testDest    = int64(-1002000000001)
	testBackup  = int64(-1003000000001)
	testReview  = int64(-1004000000001)
	testCommand = int64(100)
)

// --- mocks ---

type mockAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	nextID  int
	updates chan tgbotapi.Update
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, c)
	m.nextID++
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if m.updates != nil {
		return m.updates
	}
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) forwards() []tgbotapi.ForwardConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.ForwardConfig
	for _, c := range m.sent {
		if f, ok := c.(tgbotapi.ForwardConfig); ok {
			out = append(out, f)
		}
	}
	return out
}

func (m *mockAPI) messages() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range m.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockAPI) copies() []tgbotapi.CopyMessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.CopyMessageConfig
	for _, c := range m.sent {
		if cp, ok := c.(tgbotapi.CopyMessageConfig); ok {
			out = append(out, cp)
		}
	}
	return out
}

func (m *mockAPI) edits() []tgbotapi.EditMessageTextConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range m.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockAPI) lastMessageText() string {
	msgs := m.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

type fakePipeline struct {
	mu      sync.Mutex
	err     error
	calls   []debloat.Inbound
	started chan int // receives the message ID as each call begins
	block   chan struct{}
}

func (f *fakePipeline) Process(_ context.Context, msg debloat.Inbound) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	err := f.err
	f.mu.Unlock()

	if f.started != nil {
		f.started <- msg.MessageID
	}
	if f.block != nil {
		<-f.block
	}

	if err != nil {
		return "", err
	}
	return "übersetzter Text", nil
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRouter struct {
	dest int64
}

func (f *fakeRouter) Destination(_ context.Context, _ string, _ int64) (int64, error) {
	return f.dest, nil
}

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *fakePipeline, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &mockAPI{}
	pipeline := &fakePipeline{}

	b := &Bot{
		api:      api,
		store:    store,
		cache:    cache.New(store, log),
		pipeline: pipeline,
		router:   &fakeRouter{dest: testDest},
		cfg: &config.Config{
			BackupChannel:      testBackup,
			ReviewChannel:      testReview,
			BackupChannelName:  "nn_backup",
			SourcesChannelName: "nn_sources",
		},
		log:         log,
		accountName: "test",
		watched:     map[int64]bool{testSource: true},
		locks:       newKeyedLock(),
	}
	return b, api, pipeline, store
}

func seedSource(t *testing.T, store *storage.SQLite, spread bool) {
	t.Helper()
	src := &model.Source{
		ChannelID:   testSource,
		ChannelName: "Source Channel",
		Bias:        "🔵",
		Destination: testDest,
		Username:    "sourcechan",
		AccountID:   1,
		IsSpread:    spread,
		IsActive:    true,
	}
	if err := store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("seed source: %v", err)
	}
}

func textPost(id int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		Chat:      &tgbotapi.Chat{ID: testSource, UserName: "sourcechan"},
		Text:      text,
		Date:      int(time.Now().Unix()),
	}
}

func captionPost(id int, caption string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		Chat:      &tgbotapi.Chat{ID: testSource, UserName: "sourcechan"},
		Caption:   caption,
		Photo:     []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}},
		Date:      int(time.Now().Unix()),
	}
}

// --- tests ---

func TestCreateTextPost(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	b.handleChannelPost(ctx, textPost(5, "Original message from the channel"))

	fwds := api.forwards()
	if len(fwds) != 1 {
		t.Fatalf("want 1 backup forward, got %d", len(fwds))
	}
	if fwds[0].ChatID != testBackup {
		t.Errorf("backup forward went to %d, want %d", fwds[0].ChatID, testBackup)
	}

	msgs := api.messages()
	if len(msgs) != 1 {
		t.Fatalf("want 1 published message, got %d", len(msgs))
	}
	if msgs[0].ChatID != testDest {
		t.Errorf("published to %d, want %d", msgs[0].ChatID, testDest)
	}
	if !strings.Contains(msgs[0].Text, "übersetzter Text") {
		t.Errorf("missing translated body: %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[0].Text, "Quelle: <a href='https://t.me/sourcechan/5'>Source Channel 🔵</a>") {
		t.Errorf("missing attribution footer: %q", msgs[0].Text)
	}

	post, err := store.GetPost(ctx, testSource, 5)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post == nil {
		t.Fatal("post row not recorded")
	}
	if post.Destination != testDest || post.BackupID == 0 {
		t.Errorf("post row incomplete: %+v", post)
	}
}

func TestCreatePostRejectedSkipsBackup(t *testing.T) {
	ctx := context.Background()
	b, api, pipeline, store := newTestBot(t)
	seedSource(t, store, true)
	pipeline.err = fmt.Errorf("blacklist hit: %w", debloat.ErrRejected)

	b.handleChannelPost(ctx, textPost(5, "spammy"))

	if got := len(api.sent); got != 0 {
		t.Errorf("rejected post must produce no API calls, got %d", got)
	}
	post, _ := store.GetPost(ctx, testSource, 5)
	if post != nil {
		t.Error("rejected post must not be recorded")
	}
}

func TestCreatePostHardErrorNoPostRow(t *testing.T) {
	ctx := context.Background()
	b, api, pipeline, store := newTestBot(t)
	seedSource(t, store, true)
	pipeline.err = errors.New("both translation backends failed")

	b.handleChannelPost(ctx, textPost(5, "text"))

	if got := len(api.sent); got != 0 {
		t.Errorf("failed post must produce no API calls, got %d", got)
	}
	post, _ := store.GetPost(ctx, testSource, 5)
	if post != nil {
		t.Error("failed post must not be recorded")
	}
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	ctx := context.Background()
	b, api, pipeline, store := newTestBot(t)
	seedSource(t, store, true)

	b.handleChannelPost(ctx, textPost(5, "message"))
	b.handleChannelPost(ctx, textPost(5, "message"))

	if got := pipeline.callCount(); got != 1 {
		t.Errorf("duplicate delivery must be processed once, got %d", got)
	}
	if got := len(api.forwards()); got != 1 {
		t.Errorf("want 1 backup forward, got %d", got)
	}
}

func TestUnwatchedAndForwardedIgnored(t *testing.T) {
	ctx := context.Background()
	b, _, pipeline, store := newTestBot(t)
	seedSource(t, store, true)

	other := textPost(5, "message")
	other.Chat = &tgbotapi.Chat{ID: -999}
	b.handleChannelPost(ctx, other)

	fwd := textPost(6, "message")
	fwd.ForwardDate = int(time.Now().Unix())
	b.handleChannelPost(ctx, fwd)

	if got := pipeline.callCount(); got != 0 {
		t.Errorf("ignored messages must not be processed, got %d calls", got)
	}
}

func TestMediaSpreadGate(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, false)

	b.handleChannelPost(ctx, captionPost(5, "caption text"))

	// Archived but not republished.
	if got := len(api.forwards()); got != 1 {
		t.Errorf("want 1 backup forward, got %d", got)
	}
	if got := len(api.copies()); got != 0 {
		t.Errorf("no-spread source must not be republished, got %d copies", got)
	}
	post, _ := store.GetPost(ctx, testSource, 5)
	if post != nil {
		t.Error("archived-only message must not be recorded")
	}
}

func TestMediaPostCopiesWithCaption(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	b.handleChannelPost(ctx, captionPost(5, "caption text"))

	copies := api.copies()
	if len(copies) != 1 {
		t.Fatalf("want 1 copy, got %d", len(copies))
	}
	if copies[0].ChatID != testDest {
		t.Errorf("copied to %d, want %d", copies[0].ChatID, testDest)
	}
	if !strings.Contains(copies[0].Caption, "übersetzter Text") {
		t.Errorf("caption missing translated body: %q", copies[0].Caption)
	}

	post, _ := store.GetPost(ctx, testSource, 5)
	if post == nil {
		t.Fatal("post row not recorded")
	}
	if post.FileID != "big" {
		t.Errorf("file ID should be the largest photo, got %q", post.FileID)
	}
}

func TestReplyResolution(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	if err := store.CreatePost(ctx, &model.Post{
		Destination:     testDest,
		MessageID:       900,
		SourceChannelID: testSource,
		SourceMessageID: 4,
		BackupID:        10,
		MessageText:     "earlier",
	}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	msg := textPost(5, "a reply")
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 4}
	b.handleChannelPost(ctx, msg)

	msgs := api.messages()
	if len(msgs) != 1 {
		t.Fatalf("want 1 published message, got %d", len(msgs))
	}
	if diff := cmp.Diff(900, msgs[0].ReplyToMessageID); diff != "" {
		t.Errorf("reply target (-want +got):\n%s", diff)
	}

	post, _ := store.GetPost(ctx, testSource, 5)
	if post == nil || post.ReplyID != 900 {
		t.Errorf("post row reply ID wrong: %+v", post)
	}
}

func TestReplyToUnknownMessage(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	msg := textPost(5, "a reply to something unmirrored")
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 4}
	b.handleChannelPost(ctx, msg)

	msgs := api.messages()
	if len(msgs) != 1 {
		t.Fatalf("want 1 published message, got %d", len(msgs))
	}
	if msgs[0].ReplyToMessageID != 0 {
		t.Errorf("unresolvable reply should publish without reply, got %d", msgs[0].ReplyToMessageID)
	}
}

func TestEditUpdatesPublishedPost(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	if err := store.CreatePost(ctx, &model.Post{
		Destination:     testDest,
		MessageID:       900,
		SourceChannelID: testSource,
		SourceMessageID: 5,
		BackupID:        77,
		MessageText:     "old",
	}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	msg := textPost(5, "corrected message")
	msg.EditDate = int(time.Now().Unix())
	b.handleEditedChannelPost(ctx, msg)

	edits := api.edits()
	if len(edits) != 1 {
		t.Fatalf("want 1 edit, got %d", len(edits))
	}
	if edits[0].ChatID != testDest || edits[0].MessageID != 900 {
		t.Errorf("edit targeted (%d, %d), want (%d, 900)", edits[0].ChatID, edits[0].MessageID, testDest)
	}
	if !strings.Contains(edits[0].Text, "https://t.me/nn_backup/77") {
		t.Errorf("edit must keep the original backup reference: %q", edits[0].Text)
	}
	if got := len(api.forwards()); got != 0 {
		t.Errorf("edit must not re-archive, got %d forwards", got)
	}
}

func TestEditOfOldPostIgnored(t *testing.T) {
	ctx := context.Background()
	b, api, pipeline, store := newTestBot(t)
	seedSource(t, store, true)

	if err := store.CreatePost(ctx, &model.Post{
		Destination:     testDest,
		MessageID:       900,
		SourceChannelID: testSource,
		SourceMessageID: 5,
		BackupID:        77,
		MessageText:     "old",
	}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	// The post itself is 8 days old; the edit just happened. Age is
	// judged by the post's date, so this must be dropped.
	msg := textPost(5, "touch-up of an ancient post")
	msg.Date = int(time.Now().Add(-8 * 24 * time.Hour).Unix())
	msg.EditDate = int(time.Now().Unix())
	b.handleEditedChannelPost(ctx, msg)

	if pipeline.callCount() != 0 || len(api.sent) != 0 {
		t.Error("edits of posts older than a week must be ignored")
	}
}

func TestEditOfRecentPostApplied(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	if err := store.CreatePost(ctx, &model.Post{
		Destination:     testDest,
		MessageID:       900,
		SourceChannelID: testSource,
		SourceMessageID: 5,
		BackupID:        77,
		MessageText:     "old",
	}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	msg := textPost(5, "corrected shortly after posting")
	msg.Date = int(time.Now().Add(-time.Hour).Unix())
	msg.EditDate = int(time.Now().Unix())
	b.handleEditedChannelPost(ctx, msg)

	if got := len(api.edits()); got != 1 {
		t.Errorf("edit of a recent post must be mirrored, got %d edits", got)
	}
}

func TestEditWithoutPostCreates(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)

	msg := textPost(5, "edit of an unmirrored message")
	msg.EditDate = int(time.Now().Unix())
	b.handleEditedChannelPost(ctx, msg)

	if got := len(api.forwards()); got != 1 {
		t.Errorf("want backup forward for the fresh publish, got %d", got)
	}
	post, _ := store.GetPost(ctx, testSource, 5)
	if post == nil {
		t.Error("edit without prior post must publish and record")
	}
}

func TestUpdatesDispatchConcurrently(t *testing.T) {
	b, api, pipeline, store := newTestBot(t)
	seedSource(t, store, true)

	release := make(chan struct{})
	pipeline.block = release
	pipeline.started = make(chan int, 2)
	api.updates = make(chan tgbotapi.Update, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{ChannelPost: textPost(5, "first post, stuck in translation")}
	api.updates <- tgbotapi.Update{ChannelPost: textPost(6, "second post arriving right behind")}

	seen := make(map[int]bool)
	for i := 0; i < 2; i++ {
		select {
		case id := <-pipeline.started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 updates in flight; a slow pipeline call must not stall the events behind it", i)
		}
	}
	if !seen[5] || !seen[6] {
		t.Errorf("both posts must reach the pipeline, got %v", seen)
	}

	close(release)

	// Wait for both handlers to finish publishing before tearing down.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		first, _ := store.GetPost(context.Background(), testSource, 5)
		second, _ := store.GetPost(context.Background(), testSource, 6)
		if first != nil && second != nil {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("posts were not published after the pipeline unblocked")
}

func TestHandleRefresh(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedSource(t, store, true)
	if err := store.CreateDestination(ctx, &model.Destination{ChannelID: testDest, Name: "Ukraine"}); err != nil {
		t.Fatalf("seed destination: %v", err)
	}

	b.handleRefresh(ctx, testCommand)

	reply := api.lastMessageText()
	if !strings.Contains(reply, "Cache refreshed") {
		t.Errorf("missing summary: %q", reply)
	}
	if !strings.Contains(reply, "Sources: 1") || !strings.Contains(reply, "Destinations: 1") {
		t.Errorf("missing counts: %q", reply)
	}
}

func TestHandleJoinLeave(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)

	inactive := &model.Source{
		ChannelID:   -1005,
		ChannelName: "New Source",
		Destination: testDest,
		AccountID:   1,
		IsActive:    false,
	}
	if err := store.CreateSource(ctx, inactive); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	b.handleJoin(ctx, testCommand, "-1005")
	if reply := api.lastMessageText(); !strings.Contains(reply, "SUCCESS") {
		t.Errorf("join reply: %q", reply)
	}
	if !b.isWatched(-1005) {
		t.Error("joined source must be watched")
	}

	b.handleLeave(ctx, testCommand, "-1005")
	if reply := api.lastMessageText(); !strings.Contains(reply, "SUCCESS") {
		t.Errorf("leave reply: %q", reply)
	}
	if b.isWatched(-1005) {
		t.Error("left source must not be watched")
	}

	b.handleJoin(ctx, testCommand, "not-a-number")
	if reply := api.lastMessageText(); !strings.Contains(reply, "Usage: /join") {
		t.Errorf("usage reply: %q", reply)
	}
}
