package cron

import (
	"context"
	"fmt"
)

// Job is one housekeeping task. Run reports how many rows it changed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// Registry holds jobs in registration order, unique by name.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends job. Nil jobs are ignored.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("job %T has no name", job)
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("job %q registered twice", name)
	}
	r.byName[name] = job
	r.jobs = append(r.jobs, job)
	return nil
}

// Select returns the named jobs in registration order, or all of them when
// names is empty.
func (r *Registry) Select(names ...string) ([]Job, error) {
	if len(names) == 0 {
		out := make([]Job, len(r.jobs))
		copy(out, r.jobs)
		return out, nil
	}
	want := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		want[name] = struct{}{}
	}
	out := make([]Job, 0, len(want))
	for _, job := range r.jobs {
		if _, ok := want[job.Name()]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}
