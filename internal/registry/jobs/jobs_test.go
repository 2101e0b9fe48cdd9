package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentregistry-dev/mcpindex/internal/registry/jobs"
)

func TestManager_Completes(t *testing.T) {
	m := jobs.NewManager(nil)
	job := m.Start(context.Background(), "reindex", func(_ context.Context, progress jobs.ProgressFunc) (map[string]any, error) {
		progress(50, "halfway")
		return map[string]any{"indexed": 3}, nil
	})
	assert.Equal(t, "reindex", job.Type)
	m.Wait()

	got, ok := m.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 3, got.Result["indexed"])
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
}

func TestManager_Fails(t *testing.T) {
	m := jobs.NewManager(nil)
	job := m.Start(context.Background(), "reindex", func(context.Context, jobs.ProgressFunc) (map[string]any, error) {
		return nil, errors.New("backend down")
	})
	m.Wait()

	got, _ := m.Get(job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "backend down", got.Error)
}

func TestManager_RecoversPanic(t *testing.T) {
	m := jobs.NewManager(nil)
	job := m.Start(context.Background(), "reindex", func(context.Context, jobs.ProgressFunc) (map[string]any, error) {
		panic("boom")
	})
	m.Wait()

	got, _ := m.Get(job.ID)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "boom")
}

func TestManager_OutlivesRequestContext(t *testing.T) {
	m := jobs.NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	job := m.Start(ctx, "reindex", func(ctx context.Context, _ jobs.ProgressFunc) (map[string]any, error) {
		<-release
		return nil, ctx.Err()
	})
	cancel()
	close(release)
	m.Wait()

	got, _ := m.Get(job.ID)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
}

func TestManager_GetUnknownAndCleanup(t *testing.T) {
	m := jobs.NewManager(nil)
	_, ok := m.Get("missing")
	assert.False(t, ok)

	m.Start(context.Background(), "reindex", func(context.Context, jobs.ProgressFunc) (map[string]any, error) {
		return nil, nil
	})
	m.Wait()
	assert.Len(t, m.List(), 1)

	assert.Equal(t, 0, m.Cleanup(time.Hour))
	assert.Equal(t, 1, m.Cleanup(-time.Second))
	assert.Empty(t, m.List())
}
