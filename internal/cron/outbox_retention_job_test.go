package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
	"github.com/angelmondragon/fintrack-backend/pkg/logger"
)

func TestOutboxRetentionJobDeletesSettledRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-defaultOutboxRetention)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected max attempts %d, got %d", defaultMaxAttempts, repo.maxAttempts)
	}
	if len(repo.keep) != 1 || repo.keep[0] != enums.EventSubscriptionTrialExpiring {
		t.Fatalf("trial warnings must be retained, keep=%v", repo.keep)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxRetentionRepo{err: errors.New("boom")}
	job := newOutboxRetentionJob(t, repo)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Discard(),
		DB:         outboxRetentionTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxRetentionRepo struct {
	lastCutoff  time.Time
	maxAttempts int
	keep        []enums.OutboxEventType
	called      int
	err         error
}

func (f *fakeOutboxRetentionRepo) DeleteSettledBefore(tx *gorm.DB, cutoff time.Time, maxAttempts int, keep ...enums.OutboxEventType) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.maxAttempts = maxAttempts
	f.keep = keep
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type outboxRetentionTxRunner struct{}

func (outboxRetentionTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
