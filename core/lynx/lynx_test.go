package lynx

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/seoasis/contentforge/core/job"
)

type fakeJob struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopErr  error
}

func (j *fakeJob) Start(ctx context.Context) error {
	j.started.Store(true)
	return j.startErr
}

func (j *fakeJob) Stop() error {
	j.stopped.Store(true)
	return j.stopErr
}

func TestRun_StartsWaitsAndStopsJobs(t *testing.T) {
	j1 := &fakeJob{}
	j2 := &fakeJob{}
	l := New(&Options{Jobs: []job.Job{j1, j2}})

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}()

	if err := l.Run(); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !j1.started.Load() || !j2.started.Load() {
		t.Fatal("expected both jobs to be started")
	}
	if !j1.stopped.Load() || !j2.stopped.Load() {
		t.Fatal("expected both jobs to be stopped")
	}
}

func TestRun_JoinsStartErrors(t *testing.T) {
	boom := errors.New("boom")
	j1 := &fakeJob{startErr: boom}
	l := New(&Options{Jobs: []job.Job{j1}})

	err := l.start()
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error to be joined, got %v", err)
	}
}
