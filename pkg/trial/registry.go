package trial

import (
	"sync"

	"github.com/mfprior/mfsched/pkg/searchspace"
)

// Registry owns every trial of a run. All operations are safe for concurrent
// use; each operation is atomic with respect to the trial it touches.
type Registry struct {
	mu     sync.Mutex
	trials []*record
}

type record struct {
	id           ID
	config       searchspace.Config
	observations []Observation
	status       Status
	failure      string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create registers a new trial for the configuration and returns its id. The
// trial starts Pending.
func (r *Registry) Create(config searchspace.Config) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ID(len(r.trials))
	cloned := make(searchspace.Config, len(config))
	for k, v := range config {
		cloned[k] = v
	}
	r.trials = append(r.trials, &record{id: id, config: cloned, status: Pending})
	return id
}

// RecordResult appends the observed loss for the trial at the given fidelity.
// Recording the same (trial, fidelity) pair twice fails with a
// DuplicateObservationError.
func (r *Registry) RecordResult(id ID, fidelity, loss float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	for _, o := range rec.observations {
		if o.Fidelity == fidelity {
			return &DuplicateObservationError{Trial: id, Fidelity: fidelity}
		}
	}
	rec.observations = append(rec.observations, Observation{Fidelity: fidelity, Loss: loss})
	return nil
}

// RecordFailure notes a benchmark failure for the trial. No loss is recorded.
func (r *Registry) RecordFailure(id ID, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	rec.failure = msg
	return nil
}

// SetStatus moves the trial to the given status, failing with an
// InvalidTransitionError if the lifecycle graph does not permit the edge.
func (r *Registry) SetStatus(id ID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return err
	}
	if !validTransitions[rec.status][status] {
		return &InvalidTransitionError{Trial: id, From: rec.status, To: status}
	}
	rec.status = status
	return nil
}

// Get returns a snapshot of the trial.
func (r *Registry) Get(id ID) (Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.get(id)
	if err != nil {
		return Trial{}, err
	}
	return rec.snapshot(), nil
}

// Query returns snapshots of every trial the filter accepts, in creation
// order. A nil filter accepts everything.
func (r *Registry) Query(filter func(Trial) bool) []Trial {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Trial
	for _, rec := range r.trials {
		t := rec.snapshot()
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	return out
}

// Count returns the number of trials ever created.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trials)
}

func (r *Registry) get(id ID) (*record, error) {
	if int(id) < 0 || int(id) >= len(r.trials) {
		return nil, &NotFoundError{Trial: id}
	}
	return r.trials[id], nil
}

func (rec *record) snapshot() Trial {
	obs := make([]Observation, len(rec.observations))
	copy(obs, rec.observations)
	cfg := make(searchspace.Config, len(rec.config))
	for k, v := range rec.config {
		cfg[k] = v
	}
	return Trial{
		ID:           rec.id,
		Config:       cfg,
		Observations: obs,
		Status:       rec.status,
		Failure:      rec.failure,
	}
}
