package content

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedshelf/internal/database"
	"github.com/hitoshi/feedshelf/internal/feed"
	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
	"github.com/hitoshi/feedshelf/internal/security"
)

// testStore はマイグレーション済みSQLiteを使うサービス一式。
type testStore struct {
	feeds    *feed.Service
	contents *Service
	state    *StateService
	recorder *recordingRecorder
}

// recordingRecorder は記録された操作を保持するMutationRecorder。
type recordingRecorder struct {
	ops  []string
	errs []error
}

func (r *recordingRecorder) RecordMutation(op string, err error) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "content.db")
	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	db, err := database.Open(url)
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	w := database.NewWriter(db)
	feedRepo := repository.NewSQLFeedRepo(w)
	contentRepo := repository.NewSQLContentRepo(w)
	recorder := &recordingRecorder{}

	return &testStore{
		feeds:    feed.NewService(feedRepo, nil),
		contents: NewService(contentRepo, feedRepo, security.NewContentSanitizer()),
		state:    NewStateService(contentRepo, recorder),
		recorder: recorder,
	}
}

func (s *testStore) unread(t *testing.T, feedID string) int {
	t.Helper()
	f, err := s.feeds.Get(context.Background(), feedID)
	if err != nil {
		t.Fatalf("Get returned unexpected error: %v", err)
	}
	return f.UnreadCount
}

// TestScenario_FeedContentMarkRead はフィード作成、記事作成、既読化で未読数が1から0になることを検証する。
func TestScenario_FeedContentMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, _, err := s.feeds.FindOrCreate(ctx, model.FeedInput{URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("FindOrCreate feed returned unexpected error: %v", err)
	}

	c, created, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{
		FeedID: f.ID,
		URL:    "https://example.com/a1",
		Title:  "A1",
	})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}
	if !created {
		t.Error("created should be true")
	}
	if c.Kind != model.KindArticle || c.IsRead || c.IsFavorite || c.IsDeleted {
		t.Errorf("新規記事の既定値が不正: %+v", c)
	}
	if got := s.unread(t, f.ID); got != 1 {
		t.Fatalf("UnreadCount = %d, want 1", got)
	}

	if _, err := s.state.MarkRead(ctx, c.ID); err != nil {
		t.Fatalf("MarkRead returned unexpected error: %v", err)
	}
	if got := s.unread(t, f.ID); got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}

	// 2回目は変化しない
	again, err := s.state.MarkRead(ctx, c.ID)
	if err != nil {
		t.Fatalf("MarkRead returned unexpected error: %v", err)
	}
	if !again.IsRead {
		t.Error("IsRead should be true")
	}
	if got := s.unread(t, f.ID); got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}
}

// TestService_FindOrCreate_Idempotent は同一URLで同じレコードが返ることを検証する。
func TestService_FindOrCreate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, _, err := s.contents.FindOrCreateEpisode(ctx, model.ContentInput{
		URL:             "https://example.com/ep1",
		AudioURL:        "https://cdn.example.com/ep1.mp3",
		DurationSeconds: 1800,
	})
	if err != nil {
		t.Fatalf("FindOrCreateEpisode returned unexpected error: %v", err)
	}
	second, created, err := s.contents.FindOrCreateEpisode(ctx, model.ContentInput{
		URL:   "https://example.com/ep1",
		Title: "ignored",
	})
	if err != nil {
		t.Fatalf("FindOrCreateEpisode returned unexpected error: %v", err)
	}
	if created || first.ID != second.ID {
		t.Errorf("同一URLでは既存レコードが返るべき: created=%v ids=%s,%s", created, first.ID, second.ID)
	}
	if second.Kind != model.KindPodcast || second.AudioURL != "https://cdn.example.com/ep1.mp3" || second.DurationSeconds != 1800 {
		t.Errorf("episode = %+v", second)
	}
	if second.Title != "" {
		t.Errorf("既存レコードの値は上書きされないべき: Title = %q", second.Title)
	}
}

// TestService_FindOrCreate_SanitizesBody は本文がサニタイズされて保存されることを検証する。
func TestService_FindOrCreate_SanitizesBody(t *testing.T) {
	s := newTestStore(t)

	c, _, err := s.contents.FindOrCreateArticle(context.Background(), model.ContentInput{
		URL:  "https://example.com/xss",
		Body: `<p>ok</p><script>alert(1)</script>`,
	})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}
	if strings.Contains(c.Body, "script") || !strings.Contains(c.Body, "<p>ok</p>") {
		t.Errorf("Body = %q", c.Body)
	}
}

// TestService_FindOrCreate_Errors は入力エラーと未知のフィードを検証する。
func TestService_FindOrCreate_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{URL: "not-a-url"}); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, _, err := s.contents.FindOrCreate(ctx, model.ContentInput{URL: "https://example.com/x", Kind: "video"}); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{URL: "https://example.com/x", FeedID: "missing"}); !model.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

// TestStateService_ToggleFavoriteTwice は2回のトグルで元の値に戻ることを検証する。
func TestStateService_ToggleFavoriteTwice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{URL: "https://example.com/fav"})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}

	first, err := s.state.ToggleFavorite(ctx, c.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite returned unexpected error: %v", err)
	}
	second, err := s.state.ToggleFavorite(ctx, c.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite returned unexpected error: %v", err)
	}
	if !first.IsFavorite || second.IsFavorite {
		t.Errorf("toggle results = %v, %v; want true, false", first.IsFavorite, second.IsFavorite)
	}
}

// TestStateService_MarkDeleted_Retrievable は論理削除後もIDで取得でき、一覧から除外されることを検証する。
func TestStateService_MarkDeleted_Retrievable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, _, err := s.feeds.FindOrCreate(ctx, model.FeedInput{URL: "https://example.com/feed"})
	if err != nil {
		t.Fatalf("FindOrCreate returned unexpected error: %v", err)
	}
	c, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{FeedID: f.ID, URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}

	deleted, err := s.state.MarkDeleted(ctx, c.ID)
	if err != nil {
		t.Fatalf("MarkDeleted returned unexpected error: %v", err)
	}
	if !deleted.IsDeleted {
		t.Error("IsDeleted should be true")
	}
	if got := s.unread(t, f.ID); got != 0 {
		t.Errorf("未読の削除で未読数が減るべき: UnreadCount = %d", got)
	}

	got, err := s.contents.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get returned unexpected error: %v", err)
	}
	if !got.IsDeleted {
		t.Error("削除済みでも取得できるべき")
	}

	list, err := s.contents.List(ctx, f.ID, model.ContentFilterAll, "", 0)
	if err != nil {
		t.Fatalf("List returned unexpected error: %v", err)
	}
	if len(list.Contents) != 0 {
		t.Errorf("削除済みは一覧に含まれないべき: %d件", len(list.Contents))
	}
}

// TestStateService_FeedDeleteDoesNotCascade はフィードの論理削除がコンテンツに波及しないことを検証する。
func TestStateService_FeedDeleteDoesNotCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, _, _ := s.feeds.FindOrCreate(ctx, model.FeedInput{URL: "https://example.com/feed"})
	c, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{FeedID: f.ID, URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}

	if _, err := s.feeds.MarkDeleted(ctx, f.ID); err != nil {
		t.Fatalf("MarkDeleted returned unexpected error: %v", err)
	}

	got, err := s.contents.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get returned unexpected error: %v", err)
	}
	if got.IsDeleted {
		t.Error("フィード削除でコンテンツは削除されないべき")
	}
}

// TestStateService_Summaries は要約とAI要約の更新を検証する。
func TestStateService_Summaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{URL: "https://example.com/s"})
	if err != nil {
		t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
	}

	later := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	s.state.now = func() time.Time { return later }

	got, err := s.state.UpdateSummary(ctx, c.ID, "要約")
	if err != nil {
		t.Fatalf("UpdateSummary returned unexpected error: %v", err)
	}
	if got.Summary != "要約" || !got.LastUpdatedAt.Equal(later) {
		t.Errorf("got = (%q, %v)", got.Summary, got.LastUpdatedAt)
	}

	got, err = s.state.UpdateAISummary(ctx, c.ID, "AIによる要約")
	if err != nil {
		t.Fatalf("UpdateAISummary returned unexpected error: %v", err)
	}
	if got.AISummary != "AIによる要約" || got.Summary != "要約" {
		t.Errorf("got = (%q, %q)", got.Summary, got.AISummary)
	}
}

// TestStateService_UpdatePlaybackPosition は再生位置の更新と負の値の拒否を検証する。
func TestStateService_UpdatePlaybackPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, _, err := s.contents.FindOrCreateEpisode(ctx, model.ContentInput{URL: "https://example.com/ep"})
	if err != nil {
		t.Fatalf("FindOrCreateEpisode returned unexpected error: %v", err)
	}

	got, err := s.state.UpdatePlaybackPosition(ctx, c.ID, 125)
	if err != nil {
		t.Fatalf("UpdatePlaybackPosition returned unexpected error: %v", err)
	}
	if got.PlaybackPositionSeconds != 125 {
		t.Errorf("PlaybackPositionSeconds = %d, want 125", got.PlaybackPositionSeconds)
	}

	_, err = s.state.UpdatePlaybackPosition(ctx, c.ID, -1)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPlaybackPosition {
		t.Errorf("expected INVALID_PLAYBACK_POSITION, got %v", err)
	}
}

// TestStateService_MissingID は存在しないIDでNotFoundが返り、記録されることを検証する。
func TestStateService_MissingID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ops := []func() (*model.Content, error){
		func() (*model.Content, error) { return s.state.MarkRead(ctx, "missing") },
		func() (*model.Content, error) { return s.state.ToggleFavorite(ctx, "missing") },
		func() (*model.Content, error) { return s.state.MarkDeleted(ctx, "missing") },
		func() (*model.Content, error) { return s.state.UpdateSummary(ctx, "missing", "x") },
		func() (*model.Content, error) { return s.state.UpdateAISummary(ctx, "missing", "x") },
		func() (*model.Content, error) { return s.state.UpdatePlaybackPosition(ctx, "missing", 1) },
	}
	for i, op := range ops {
		if _, err := op(); !model.IsNotFound(err) {
			t.Errorf("op[%d]: expected not found, got %v", i, err)
		}
	}

	if len(s.recorder.ops) != len(ops) {
		t.Fatalf("recorded ops = %d, want %d", len(s.recorder.ops), len(ops))
	}
	for i, err := range s.recorder.errs {
		if !model.IsNotFound(err) {
			t.Errorf("recorded err[%d] = %v, want not found", i, err)
		}
	}
}

// TestService_List_Pagination はカーソルで次ページを取得できることを検証する。
func TestService_List_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, _, _ := s.feeds.FindOrCreate(ctx, model.FeedInput{URL: "https://example.com/feed"})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		published := base.Add(time.Duration(i) * time.Minute)
		if _, _, err := s.contents.FindOrCreateArticle(ctx, model.ContentInput{
			FeedID:      f.ID,
			URL:         "https://example.com/p" + string(rune('0'+i)),
			PublishedAt: &published,
		}); err != nil {
			t.Fatalf("FindOrCreateArticle returned unexpected error: %v", err)
		}
	}

	page1, err := s.contents.List(ctx, f.ID, "", "", 3)
	if err != nil {
		t.Fatalf("List returned unexpected error: %v", err)
	}
	if len(page1.Contents) != 3 || !page1.HasMore || page1.NextCursor == "" {
		t.Fatalf("page1 = %d件 hasMore=%v cursor=%q", len(page1.Contents), page1.HasMore, page1.NextCursor)
	}
	if page1.Contents[0].SourceURL != "https://example.com/p4" {
		t.Errorf("先頭は最新であるべき: %s", page1.Contents[0].SourceURL)
	}

	page2, err := s.contents.List(ctx, f.ID, model.ContentFilterAll, page1.NextCursor, 3)
	if err != nil {
		t.Fatalf("List returned unexpected error: %v", err)
	}
	if len(page2.Contents) != 2 || page2.HasMore || page2.NextCursor != "" {
		t.Errorf("page2 = %d件 hasMore=%v cursor=%q", len(page2.Contents), page2.HasMore, page2.NextCursor)
	}
}

// TestService_List_Errors はフィルタ・カーソル・フィードIDのエラーを検証する。
func TestService_List_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f, _, _ := s.feeds.FindOrCreate(ctx, model.FeedInput{URL: "https://example.com/feed"})

	if _, err := s.contents.List(ctx, f.ID, "starred", "", 10); !model.IsValidation(err) {
		t.Errorf("expected validation error for filter, got %v", err)
	}
	if _, err := s.contents.List(ctx, f.ID, model.ContentFilterAll, "garbage", 10); !model.IsValidation(err) {
		t.Errorf("expected validation error for cursor, got %v", err)
	}
	if _, err := s.contents.List(ctx, "missing", model.ContentFilterAll, "", 10); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

// TestCursor_RoundTrip はカーソルのエンコードとデコードを検証する。
func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	got, err := DecodeCursor(EncodeCursor(ts, "abc"))
	if err != nil {
		t.Fatalf("DecodeCursor returned unexpected error: %v", err)
	}
	if !got.PublishedAt.Equal(ts) || got.ID != "abc" {
		t.Errorf("cursor = %+v", got)
	}

	for _, bad := range []string{"", "2026-05-01T09:30:00Z", "yesterday|abc", "2026-05-01T09:30:00Z|"} {
		if _, err := DecodeCursor(bad); !model.IsValidation(err) {
			t.Errorf("DecodeCursor(%q) should fail with validation error, got %v", bad, err)
		}
	}
}
