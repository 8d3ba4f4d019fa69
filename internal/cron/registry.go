package cron

import "context"

// Job is a unit of scheduled work run by the sync worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs the worker executes each interval.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the provided jobs, skipping nils.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job. A job whose name is already registered is dropped
// so a misconfigured caller cannot schedule the same work twice.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	for _, existing := range r.jobs {
		if existing.Name() == job.Name() {
			return
		}
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
