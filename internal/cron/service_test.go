package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stagelyhq/stagely-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newCycleService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	syncJob := &testJob{name: "credit-sync"}
	expiryJob := &testJob{name: "entitlement-expiry", err: errors.New("repo down")}
	service := newCycleService(t, &fakeLock{}, syncJob, expiryJob)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if syncJob.runs != 1 {
		t.Fatalf("sync job ran %d times", syncJob.runs)
	}
	if expiryJob.runs != 1 {
		t.Fatalf("a failing job must not stop the cycle; expiry ran %d times", expiryJob.runs)
	}
}

func TestRunCycleSkipsWhenLockIsHeld(t *testing.T) {
	job := &testJob{name: "credit-sync"}
	lock := &fakeLock{held: true}
	service := newCycleService(t, lock, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run while another worker holds the lock")
	}
	if lock.acquires != 1 {
		t.Fatalf("expected exactly one acquire attempt, got %d", lock.acquires)
	}
}

func TestRunCycleReleasesLock(t *testing.T) {
	lock := &fakeLock{}
	service := newCycleService(t, lock, &testJob{name: "credit-sync"})

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if lock.held {
		t.Fatalf("lock must be released after the cycle")
	}
}
