// Package cleanup は論理削除済みレコードの物理削除（コンパクション）ジョブを提供する。
// 保持期間（デフォルト30日）を超過した削除済みコンテンツと、
// コンテンツを持たなくなった削除済みフィードをcronスケジュールで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger は論理削除済みレコードの物理削除を行う。
// ContentRepositoryとFeedRepositoryが満たす。
type Purger interface {
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// Result はRunの削除件数。
type Result struct {
	Contents int64
	Feeds    int64
}

// CleanupJob は保持期間を超過した論理削除済みレコードの削除ジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	contents      Purger
	feeds         Purger
	logger        *slog.Logger
	RetentionDays int // 削除済みレコードの保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(contents, feeds Purger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		contents:      contents,
		feeds:         feeds,
		logger:        logger,
		RetentionDays: 30,
		now:           time.Now,
	}
}

// Run は保持期間を超過した削除済みコンテンツを削除し、その後空になった削除済みフィードを削除する。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	var result Result
	n, err := j.contents.PurgeDeleted(ctx, before)
	if err != nil {
		j.logger.Error("コンテンツのコンパクションに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return result, fmt.Errorf("コンテンツのコンパクションに失敗: %w", err)
	}
	result.Contents = n

	n, err = j.feeds.PurgeDeleted(ctx, before)
	if err != nil {
		j.logger.Error("フィードのコンパクションに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return result, fmt.Errorf("フィードのコンパクションに失敗: %w", err)
	}
	result.Feeds = n

	j.logger.Info("コンパクションジョブが完了しました",
		slog.Int64("deleted_contents", result.Contents),
		slog.Int64("deleted_feeds", result.Feeds),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return result, nil
}

// Scheduler はCleanupJobをcron式に従って実行する。
type Scheduler struct {
	cron    *cron.Cron
	job     *CleanupJob
	entryID cron.EntryID
}

// NewScheduler はschedule（"@daily" などのcron式）でジョブを登録したSchedulerを生成する。
func NewScheduler(job *CleanupJob, schedule string) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), job: job}

	id, err := s.cron.AddFunc(schedule, func() {
		if _, err := job.Run(context.Background()); err != nil {
			job.logger.Error("スケジュールされたコンパクションに失敗しました", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("コンパクションのスケジュールが不正です: %q: %w", schedule, err)
	}
	s.entryID = id
	return s, nil
}

// Start はスケジューラを開始する。
func (s *Scheduler) Start() {
	s.cron.Start()
	s.job.logger.Info("コンパクションスケジューラを開始しました",
		slog.Time("next_run", s.NextRun()),
	)
}

// NextRun は次回の実行予定時刻を返す。開始前はゼロ値。
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
