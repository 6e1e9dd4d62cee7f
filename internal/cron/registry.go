package cron

import "context"

// Job is one unit of scheduled maintenance work. Names double as metric
// labels, so they must be stable and unique within a worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a cron cycle executes, in registration order.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs. Nil jobs
// and duplicate names are dropped.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds a job. A job whose name is already registered is ignored so
// that per-job metrics and run logs stay unambiguous.
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
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
