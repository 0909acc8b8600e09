package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranvd/jobflow-be/internal/domain"
)

func newTestJob(resourceID string) *domain.Job {
	now := time.Now()
	return &domain.Job{
		JobID:          uuid.New().String(),
		ResourceID:     resourceID,
		Status:         domain.JobStatusPending,
		TaskParameters: "{}",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemory_CreateRejectsSecondActiveJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first := newTestJob("resource-42")
	require.NoError(t, store.Create(ctx, first))

	second := newTestJob("resource-42")
	err := store.Create(ctx, second)
	require.Error(t, err)

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.JobID, conflict.ActiveJobID)

	// A different resource is unaffected
	require.NoError(t, store.Create(ctx, newTestJob("resource-43")))
}

func TestMemory_CreateAllowedAfterTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first := newTestJob("resource-42")
	require.NoError(t, store.Create(ctx, first))

	claimed, err := store.Claim(ctx, first.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	failed, err := store.Fail(ctx, first.JobID, "executor blew up")
	require.NoError(t, err)
	require.True(t, failed)

	// Terminal job no longer blocks submission
	require.NoError(t, store.Create(ctx, newTestJob("resource-42")))
}

func TestMemory_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, newTestJob("resource-42"))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict))
		conflicts++
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestMemory_StateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("claim only succeeds from pending", func(t *testing.T) {
		store := NewMemory()
		job := newTestJob("resource-1")
		require.NoError(t, store.Create(ctx, job))

		claimed, err := store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		assert.True(t, claimed)

		// Duplicate delivery: second claim is a no-op
		claimed, err = store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("complete only succeeds from running", func(t *testing.T) {
		store := NewMemory()
		job := newTestJob("resource-1")
		require.NoError(t, store.Create(ctx, job))

		completed, err := store.Complete(ctx, job.JobID, `{"ok":true}`)
		require.NoError(t, err)
		assert.False(t, completed, "pending job must not complete without a claim")

		claimed, err := store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		require.True(t, claimed)

		completed, err = store.Complete(ctx, job.JobID, `{"ok":true}`)
		require.NoError(t, err)
		assert.True(t, completed)

		got, err := store.GetJobByID(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, `{"ok":true}`, got.Result)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("terminal jobs never move again", func(t *testing.T) {
		store := NewMemory()
		job := newTestJob("resource-1")
		require.NoError(t, store.Create(ctx, job))

		claimed, err := store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		require.True(t, claimed)

		failed, err := store.Fail(ctx, job.JobID, "boom")
		require.NoError(t, err)
		require.True(t, failed)

		before, err := store.GetJobByID(ctx, job.JobID)
		require.NoError(t, err)

		// Repeated terminal writes are all no-ops
		failed, err = store.Fail(ctx, job.JobID, "boom again")
		require.NoError(t, err)
		assert.False(t, failed)

		completed, err := store.Complete(ctx, job.JobID, "{}")
		require.NoError(t, err)
		assert.False(t, completed)

		claimed, err = store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		assert.False(t, claimed)

		after, err := store.GetJobByID(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, after.Status)
		assert.Equal(t, "boom", after.ErrorMessage)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	})
}

func TestMemory_FailTruncatesErrorMessage(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	job := newTestJob("resource-1")
	require.NoError(t, store.Create(ctx, job))

	claimed, err := store.Claim(ctx, job.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	long := strings.Repeat("x", domain.ErrorMessageMaxLen+100)
	failed, err := store.Fail(ctx, job.JobID, long)
	require.NoError(t, err)
	require.True(t, failed)

	got, err := store.GetJobByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Len(t, got.ErrorMessage, domain.ErrorMessageMaxLen)
}

func TestMemory_ListStaleBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store.Now = func() time.Time { return base }

	job := newTestJob("resource-42")
	require.NoError(t, store.Create(ctx, job))

	claimed, err := store.Claim(ctx, job.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	// Aged exactly to the cutoff counts as stale
	stale, err := store.ListStale(ctx, "", base)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, job.JobID, stale[0].JobID)

	// One nanosecond fresher than the cutoff does not
	stale, err = store.ListStale(ctx, "", base.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Scoped to a different resource finds nothing
	stale, err = store.ListStale(ctx, "resource-99", base)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestMemory_GetActiveAndLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.GetActive(ctx, "resource-42")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = store.GetLatest(ctx, "resource-42")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	older := newTestJob("resource-42")
	older.CreatedAt = now
	older.UpdatedAt = now
	require.NoError(t, store.Create(ctx, older))

	claimed, err := store.Claim(ctx, older.JobID)
	require.NoError(t, err)
	require.True(t, claimed)

	active, err := store.GetActive(ctx, "resource-42")
	require.NoError(t, err)
	assert.Equal(t, older.JobID, active.JobID)

	completed, err := store.Complete(ctx, older.JobID, "{}")
	require.NoError(t, err)
	require.True(t, completed)

	_, err = store.GetActive(ctx, "resource-42")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	newer := newTestJob("resource-42")
	newer.CreatedAt = now.Add(time.Minute)
	newer.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Create(ctx, newer))

	latest, err := store.GetLatest(ctx, "resource-42")
	require.NoError(t, err)
	assert.Equal(t, newer.JobID, latest.JobID)
}

func TestMemory_ListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		job := newTestJob("resource-42")
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		job.UpdatedAt = job.CreatedAt
		require.NoError(t, store.Create(ctx, job))
		ids = append(ids, job.JobID)

		claimed, err := store.Claim(ctx, job.JobID)
		require.NoError(t, err)
		require.True(t, claimed)
		completed, err := store.Complete(ctx, job.JobID, "{}")
		require.NoError(t, err)
		require.True(t, completed)
	}

	jobs, err := store.ListJobs(ctx, JobFilter{ResourceID: "resource-42", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	// Newest first
	assert.Equal(t, ids[2], jobs[0].JobID)
	assert.Equal(t, ids[0], jobs[2].JobID)

	jobs, err = store.ListJobs(ctx, JobFilter{Status: domain.JobStatusFailed, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// Cursor resumes after the first page
	jobs, err = store.ListJobs(ctx, JobFilter{
		ResourceID: "resource-42",
		PageSize:   10,
		Cursor:     &JobCursor{CreatedAt: base.Add(2 * time.Minute), JobID: ids[2]},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[1], jobs[0].JobID)
}
