package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoinvest/pkg/logger"
)

type stubJob struct {
	mu      sync.Mutex
	runs    int
	err     error
	block   chan struct{}
	started chan struct{}
}

func (j *stubJob) Name() string     { return "stub" }
func (j *stubJob) Schedule() string { return "* * * * * *" }

func (j *stubJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()

	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func (j *stubJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func TestAddJob_RejectsDuplicates(t *testing.T) {
	s := New(logger.NewNop())
	require.NoError(t, s.AddJob(&stubJob{}))
	assert.Error(t, s.AddJob(&stubJob{}))
}

func TestRunJob_RecordsResult(t *testing.T) {
	s := New(logger.NewNop())
	job := &stubJob{err: errors.New("boom")}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("stub"))

	require.Eventually(t, func() bool {
		last, err := s.LastResult("stub")
		return err == nil && last != nil
	}, time.Second, 10*time.Millisecond)

	last, err := s.LastResult("stub")
	require.NoError(t, err)
	assert.False(t, last.Success)
	assert.Equal(t, "boom", last.Error)
}

func TestRunJob_SkipsOverlappingRun(t *testing.T) {
	s := New(logger.NewNop())
	job := &stubJob{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("stub"))
	<-job.started

	// Fire again while the first run is blocked; the tick must be
	// dropped, not queued.
	require.NoError(t, s.RunJob("stub"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, job.runCount())

	close(job.block)
	require.Eventually(t, func() bool {
		last, err := s.LastResult("stub")
		return err == nil && last != nil && last.Success
	}, time.Second, 10*time.Millisecond)
}

func TestRunJob_UnknownJob(t *testing.T) {
	s := New(logger.NewNop())
	assert.Error(t, s.RunJob("missing"))
	_, err := s.LastResult("missing")
	assert.Error(t, err)
}
