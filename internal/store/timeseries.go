package store

import (
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/jsonldb"
)

// Sample is one timeseries data point recorded during a trial.
type Sample struct {
	ID         ksid.ID   `json:"_id" jsonschema:"description=Sample identifier"`
	Experiment ksid.ID   `json:"experiment" jsonschema:"description=Experiment document id"`
	Trial      string    `json:"trial" jsonschema:"description=Trial name within the experiment"`
	Key        string    `json:"key" jsonschema:"description=Metric key"`
	Step       int64     `json:"step" jsonschema:"description=Monotonic step within the trial"`
	Value      any       `json:"value" jsonschema:"description=Scalar or text value"`
	Timestamp  time.Time `json:"timestamp"`
}

// GetID returns the sample's ID.
func (s *Sample) GetID() ksid.ID {
	return s.ID
}

// Clone returns a copy.
func (s *Sample) Clone() *Sample {
	c := *s
	return &c
}

// Timeseries stores metric samples appended during experiment trials. Samples
// live outside the document collections: they are append-heavy, carry no
// blobs and are deleted in bulk by [Timeseries.Cut].
type Timeseries struct {
	table        *jsonldb.Table[*Sample]
	byExperiment *jsonldb.Index[ksid.ID, *Sample]
}

func newTimeseries(path string) (*Timeseries, error) {
	table, err := jsonldb.NewTable[*Sample](path)
	if err != nil {
		return nil, err
	}
	t := &Timeseries{table: table}
	t.byExperiment = jsonldb.NewIndex(table, func(s *Sample) ksid.ID { return s.Experiment })
	return t, nil
}

// AddScalar appends a numeric sample.
func (t *Timeseries) AddScalar(experiment ksid.ID, trial, key string, step int64, value float64) (*Sample, error) {
	return t.add(experiment, trial, key, step, value)
}

// AddText appends a text sample.
func (t *Timeseries) AddText(experiment ksid.ID, trial, key string, step int64, value string) (*Sample, error) {
	return t.add(experiment, trial, key, step, value)
}

func (t *Timeseries) add(experiment ksid.ID, trial, key string, step int64, value any) (*Sample, error) {
	s := &Sample{
		ID:         ksid.NewID(),
		Experiment: experiment,
		Trial:      trial,
		Key:        key,
		Step:       step,
		Value:      value,
		Timestamp:  time.Now().UTC(),
	}
	if err := t.table.Append(s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Samples returns an experiment's samples matching trial and key, in step
// order. Empty trial or key matches all.
func (t *Timeseries) Samples(experiment ksid.ID, trial, key string) []*Sample {
	var samples []*Sample
	for s := range t.byExperiment.Iter(experiment) {
		if trial != "" && s.Trial != trial {
			continue
		}
		if key != "" && s.Key != key {
			continue
		}
		samples = append(samples, s)
	}
	slices.SortFunc(samples, func(a, b *Sample) int {
		if a.Step != b.Step {
			if a.Step < b.Step {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return samples
}

// Keys returns the distinct metric keys recorded for an experiment.
func (t *Timeseries) Keys(experiment ksid.ID) []string {
	seen := map[string]struct{}{}
	for s := range t.byExperiment.Iter(experiment) {
		seen[s.Key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Cut deletes an experiment's samples matching trial and key. Empty trial or
// key matches all, so Cut(experiment, "", "") drops the whole experiment's
// history. Returns the number of samples removed.
func (t *Timeseries) Cut(experiment ksid.ID, trial, key string) (int, error) {
	var ids []ksid.ID
	for s := range t.byExperiment.Iter(experiment) {
		if trial != "" && s.Trial != trial {
			continue
		}
		if key != "" && s.Key != key {
			continue
		}
		ids = append(ids, s.ID)
	}
	for i, id := range ids {
		if err := t.table.Delete(id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// Watch subscribes to sample mutations starting now.
func (t *Timeseries) Watch(buffer int) *jsonldb.Stream[*Sample] {
	return t.table.Watch(buffer)
}
