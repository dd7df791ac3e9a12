package content

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/feedshelf/internal/model"
	"github.com/hitoshi/feedshelf/internal/repository"
)

// 状態変更の操作名。メトリクスのラベルに使う。
const (
	OpMarkRead               = "mark_read"
	OpToggleFavorite         = "toggle_favorite"
	OpMarkDeleted            = "mark_deleted"
	OpUpdateSummary          = "update_summary"
	OpUpdateAISummary        = "update_ai_summary"
	OpUpdatePlaybackPosition = "update_playback_position"
)

// MutationRecorder は状態変更の結果を記録する。
type MutationRecorder interface {
	RecordMutation(operation string, err error)
}

// StateService はコンテンツの既読・お気に入り・論理削除・要約・再生位置を変更する唯一の窓口。
// 各操作は単一のコンテンツIDに対して行われ、未読数の増減はリポジトリが同一トランザクションで行う。
type StateService struct {
	contentRepo repository.ContentRepository
	recorder    MutationRecorder
	now         func() time.Time
}

// NewStateService はStateServiceを生成する。recorderはnilでもよい。
func NewStateService(contentRepo repository.ContentRepository, recorder MutationRecorder) *StateService {
	return &StateService{
		contentRepo: contentRepo,
		recorder:    recorder,
		now:         time.Now,
	}
}

// MarkRead は既読にする。既読済みなら何も変えずに現在の状態を返す。
func (s *StateService) MarkRead(ctx context.Context, id string) (*model.Content, error) {
	return s.apply(ctx, OpMarkRead, id, func() (*model.Content, error) {
		return s.contentRepo.MarkRead(ctx, id)
	})
}

// ToggleFavorite はお気に入りを反転し、反転後の状態を返す。
func (s *StateService) ToggleFavorite(ctx context.Context, id string) (*model.Content, error) {
	return s.apply(ctx, OpToggleFavorite, id, func() (*model.Content, error) {
		return s.contentRepo.ToggleFavorite(ctx, id)
	})
}

// MarkDeleted は論理削除する。レコードはIDで取得可能なまま残る。
func (s *StateService) MarkDeleted(ctx context.Context, id string) (*model.Content, error) {
	return s.apply(ctx, OpMarkDeleted, id, func() (*model.Content, error) {
		return s.contentRepo.MarkDeleted(ctx, id)
	})
}

// UpdateSummary は要約を上書きする。
func (s *StateService) UpdateSummary(ctx context.Context, id, text string) (*model.Content, error) {
	return s.apply(ctx, OpUpdateSummary, id, func() (*model.Content, error) {
		return s.contentRepo.UpdateSummary(ctx, id, text, s.now())
	})
}

// UpdateAISummary はAI要約を上書きする。要約の生成自体は呼び出し側の責務。
func (s *StateService) UpdateAISummary(ctx context.Context, id, text string) (*model.Content, error) {
	return s.apply(ctx, OpUpdateAISummary, id, func() (*model.Content, error) {
		return s.contentRepo.UpdateAISummary(ctx, id, text, s.now())
	})
}

// UpdatePlaybackPosition はエピソードの再生位置（秒）を更新する。負の値は拒否する。
func (s *StateService) UpdatePlaybackPosition(ctx context.Context, id string, seconds int) (*model.Content, error) {
	if seconds < 0 {
		err := model.NewInvalidPlaybackPositionError(seconds)
		s.record(OpUpdatePlaybackPosition, err)
		return nil, err
	}
	return s.apply(ctx, OpUpdatePlaybackPosition, id, func() (*model.Content, error) {
		return s.contentRepo.UpdatePlaybackPosition(ctx, id, seconds)
	})
}

// apply はリポジトリ呼び出しの結果をAPIErrorに変換し、記録する。
func (s *StateService) apply(
	ctx context.Context,
	op, id string,
	call func() (*model.Content, error),
) (*model.Content, error) {
	c, err := call()
	switch {
	case err != nil:
		slog.ErrorContext(ctx, "コンテンツの状態変更に失敗しました", "operation", op, "content_id", id, "error", err)
		err = model.NewStoreUnavailableError(err)
	case c == nil:
		err = model.NewContentNotFoundError(id)
	}
	s.record(op, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *StateService) record(op string, err error) {
	if s.recorder != nil {
		s.recorder.RecordMutation(op, err)
	}
}
