package experiment

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mfprior/mfsched/pkg/dispatch"
)

// header is the first line of a trajectory file; every following line is one
// dispatch.Entry.
type header struct {
	Run       string    `json:"run"`
	Algorithm string    `json:"algorithm"`
	Benchmark string    `json:"benchmark"`
	Group     string    `json:"group"`
	Seed      uint64    `json:"seed"`
	Workers   int       `json:"workers"`
	Budget    float64   `json:"budget"`
	Eta       float64   `json:"eta"`
	Rungs     []float64 `json:"rungs"`
}

func runID() string {
	return uuid.New().String()
}

// trajectoryWriter streams entries to a JSONL file as they flush out of the
// dispatcher, so a crashed run still leaves a usable prefix behind.
type trajectoryWriter struct {
	f *os.File
	w *bufio.Writer
	e *json.Encoder
}

func newTrajectoryWriter(path string, h header) (*trajectoryWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating trajectory file")
	}
	w := bufio.NewWriter(f)
	t := &trajectoryWriter{f: f, w: w, e: json.NewEncoder(w)}
	if err := t.e.Encode(h); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "writing trajectory header")
	}
	return t, nil
}

// Record implements dispatch.TrajectoryRecorder.
func (t *trajectoryWriter) Record(e dispatch.Entry) error {
	return errors.Wrap(t.e.Encode(e), "writing trajectory entry")
}

// Close implements dispatch.TrajectoryRecorder.
func (t *trajectoryWriter) Close() error {
	var result *multierror.Error
	if err := t.w.Flush(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "flushing trajectory"))
	}
	if err := t.f.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "closing trajectory"))
	}
	return result.ErrorOrNil()
}
