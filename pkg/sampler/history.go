package sampler

import (
	"github.com/mfprior/mfsched/pkg/fidelity"
	"github.com/mfprior/mfsched/pkg/trial"
)

// registryHistory adapts the trial registry into the History view the
// model-based sampler consumes: observations grouped by ladder rung.
type registryHistory struct {
	registry *trial.Registry
	ladder   *fidelity.Ladder
}

// NewRegistryHistory returns a History reading completed observations out of
// the registry, grouped by the ladder's rung fidelities.
func NewRegistryHistory(registry *trial.Registry, ladder *fidelity.Ladder) History {
	return &registryHistory{registry: registry, ladder: ladder}
}

func (h *registryHistory) ObservationsAt(rung int) []Observation {
	fid := h.ladder.Rung(rung)
	var out []Observation
	for _, t := range h.registry.Query(nil) {
		if loss, ok := t.LossAt(fid); ok {
			out = append(out, Observation{Config: t.Config, Loss: loss})
		}
	}
	return out
}

func (h *registryHistory) HighestRungWith(min int) int {
	for rung := h.ladder.Top(); rung >= 0; rung-- {
		if len(h.ObservationsAt(rung)) >= min {
			return rung
		}
	}
	return -1
}
