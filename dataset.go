package mfbo

import "fmt"

// FeasibilityDataset is an append-only store of evaluated points for one
// agent. Every record has the dimensionality fixed at construction.
type FeasibilityDataset struct {
	dim     int
	records []FeasibilityRecord
}

// NewFeasibilityDataset creates an empty dataset for vectors of length dim.
func NewFeasibilityDataset(dim int) *FeasibilityDataset {
	return &FeasibilityDataset{dim: dim}
}

// NewFeasibilityDatasetFrom builds a dataset from initial points, all tagged
// low fidelity at iteration zero.
func NewFeasibilityDatasetFrom(x [][]float64, y []int) (*FeasibilityDataset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d inputs but %d labels", ErrConfiguration, len(x), len(y))
	}

	if len(x) == 0 {
		return nil, fmt.Errorf("%w: initial dataset is empty", ErrConfiguration)
	}

	ds := NewFeasibilityDataset(len(x[0]))
	for i := range x {
		if err := ds.Append(FeasibilityRecord{X: x[i], Label: y[i], Fidelity: FidelityLow}); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// Append adds one record. The record count grows by exactly one on success and
// is unchanged on error.
func (d *FeasibilityDataset) Append(r FeasibilityRecord) error {
	if len(r.X) != d.dim {
		return fmt.Errorf("%w: record of length %d appended to dataset of dimension %d",
			ErrConfiguration, len(r.X), d.dim)
	}

	if r.Label != 0 && r.Label != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLabel, r.Label)
	}

	r.X = cloneVector(r.X)
	d.records = append(d.records, r)

	return nil
}

// Len returns the number of records.
func (d *FeasibilityDataset) Len() int { return len(d.records) }

// Dim returns the vector dimensionality.
func (d *FeasibilityDataset) Dim() int { return d.dim }

// X returns a copy of all parameter vectors in insertion order.
func (d *FeasibilityDataset) X() [][]float64 {
	out := make([][]float64, len(d.records))
	for i, r := range d.records {
		out[i] = cloneVector(r.X)
	}

	return out
}

// Y returns all labels in insertion order.
func (d *FeasibilityDataset) Y() []int {
	out := make([]int, len(d.records))
	for i, r := range d.records {
		out[i] = r.Label
	}

	return out
}

// Counts returns the number of infeasible and feasible records.
func (d *FeasibilityDataset) Counts() (infeasible, feasible int) {
	for _, r := range d.records {
		if r.Label == 1 {
			feasible++
		} else {
			infeasible++
		}
	}

	return infeasible, feasible
}

// Records returns a copy of the records.
func (d *FeasibilityDataset) Records() []FeasibilityRecord {
	out := make([]FeasibilityRecord, len(d.records))
	for i, r := range d.records {
		r.X = cloneVector(r.X)
		out[i] = r
	}

	return out
}

// truncate drops the records after the first n.
func (d *FeasibilityDataset) truncate(n int) {
	if n < len(d.records) {
		d.records = d.records[:n]
	}
}
