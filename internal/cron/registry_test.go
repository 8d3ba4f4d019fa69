package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	syncJob := &stubJob{name: "credit-sync"}
	expiryJob := &stubJob{name: "entitlement-expiry"}
	registry := NewRegistry(syncJob, nil, expiryJob)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != syncJob || jobs[1] != expiryJob {
		t.Fatalf("jobs returned out of order")
	}

	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryDropsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "credit-sync"})
	registry.Register(&stubJob{name: "credit-sync"})

	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("duplicate job name must be dropped, got %d jobs", got)
	}
}
