package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLedgerRepo struct {
	lastCutoff time.Time
	deleted    int64
	err        error
	calls      int
}

func (f *fakeLedgerRepo) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

func TestLedgerRetentionJobUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeLedgerRepo{deleted: 17}
	jobIface, err := NewLedgerRetentionJob(LedgerRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Retention:  30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	job := jobIface.(*ledgerRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one delete call, got %d", repo.calls)
	}
	expected := now.Add(-30 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
}

func TestLedgerRetentionJobPropagatesErrors(t *testing.T) {
	repo := &fakeLedgerRepo{err: errors.New("boom")}
	job, err := NewLedgerRetentionJob(LedgerRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
