package mfbo

import "fmt"

// History holds the per-iteration arrays of a search. Entry zero is the
// baseline seeded at initialization; entry i>0 belongs to iteration i.
type History struct {
	MinTime      []float64   `yaml:"min_time_array"`
	AlphaCand    [][]float64 `yaml:"alpha_cand_array"`
	Fidelity     []Fidelity  `yaml:"fidelity_array"`
	FoundExploit []int       `yaml:"found_ei_array"`
	Result       []int       `yaml:"exp_result_array"`
	Quality      []float64   `yaml:"rel_snap_array"`
}

// Len returns the number of entries. All arrays share it.
func (h *History) Len() int {
	return len(h.MinTime)
}

func (h *History) append(minTime float64, alpha []float64, fidelity Fidelity, foundExploit bool, result int, quality float64) {
	exploit := 0
	if foundExploit {
		exploit = 1
	}

	h.MinTime = append(h.MinTime, minTime)
	h.AlphaCand = append(h.AlphaCand, cloneVector(alpha))
	h.Fidelity = append(h.Fidelity, fidelity)
	h.FoundExploit = append(h.FoundExploit, exploit)
	h.Result = append(h.Result, result)
	h.Quality = append(h.Quality, quality)
}

func (h *History) consistent() bool {
	n := len(h.MinTime)

	return len(h.AlphaCand) == n &&
		len(h.Fidelity) == n &&
		len(h.FoundExploit) == n &&
		len(h.Result) == n &&
		len(h.Quality) == n
}

func (h *History) truncate(n int) {
	if n >= h.Len() {
		return
	}

	h.MinTime = h.MinTime[:n]
	h.AlphaCand = h.AlphaCand[:n]
	h.Fidelity = h.Fidelity[:n]
	h.FoundExploit = h.FoundExploit[:n]
	h.Result = h.Result[:n]
	h.Quality = h.Quality[:n]
}

func (h *History) clone() History {
	return History{
		MinTime:      cloneVector(h.MinTime),
		AlphaCand:    cloneMatrix(h.AlphaCand),
		Fidelity:     append([]Fidelity(nil), h.Fidelity...),
		FoundExploit: append([]int(nil), h.FoundExploit...),
		Result:       append([]int(nil), h.Result...),
		Quality:      cloneVector(h.Quality),
	}
}

// SearchState is the mutable state of one agent's search. It is owned by a
// single agent; controllers change it only through the agent's operations.
type SearchState struct {
	// MinTime is the current best feasible time (1.0 is the nominal
	// allocation).
	MinTime float64

	// AlphaMin is the denormalized allocation achieving MinTime.
	AlphaMin []float64

	// Dataset is the cumulative set of evaluated points.
	Dataset *FeasibilityDataset

	// Iteration counts committed iterations.
	Iteration int

	// History holds Iteration+1 entries.
	History History

	// NumLowFidelity counts low fidelity evaluations made by the loop.
	NumLowFidelity int

	// NumFoundExploit counts exploit picks.
	NumFoundExploit int

	// CandidatePool is the last candidate batch, kept for the checkpoint.
	CandidatePool [][]float64
}

// NewSearchState creates the state of a fresh search over ds. The history is
// seeded with the trivial baseline: nominal time 1, all-ones allocation,
// tagged high fidelity with a successful result.
func NewSearchState(ds *FeasibilityDataset) *SearchState {
	s := &SearchState{
		MinTime:  1.0,
		AlphaMin: ones(ds.Dim()),
		Dataset:  ds,
	}

	s.History.append(1.0, ones(ds.Dim()), FidelityHigh, true, 1, 1)

	return s
}

// Record appends an evaluated point and its history entry, and advances the
// iteration counter. The history entry captures MinTime as it is when Record
// is called, so callers update the best time first.
func (s *SearchState) Record(r FeasibilityRecord, foundExploit bool, alphaCand []float64) error {
	if err := s.Dataset.Append(r); err != nil {
		return err
	}

	s.History.append(s.MinTime, alphaCand, r.Fidelity, foundExploit, r.Label, float64(r.Label))
	s.Iteration++

	if r.Fidelity == FidelityLow {
		s.NumLowFidelity++
	}

	if foundExploit {
		s.NumFoundExploit++
	}

	return nil
}

// UpdateBest replaces the best time and allocation.
func (s *SearchState) UpdateBest(minTime float64, alpha []float64) {
	s.MinTime = minTime
	s.AlphaMin = cloneVector(alpha)
}

// stateMark holds what an iteration may change before it commits.
type stateMark struct {
	minTime         float64
	alphaMin        []float64
	datasetLen      int
	historyLen      int
	iteration       int
	numLowFidelity  int
	numFoundExploit int
	candidatePool   [][]float64
}

func (s *SearchState) mark() stateMark {
	return stateMark{
		minTime:         s.MinTime,
		alphaMin:        cloneVector(s.AlphaMin),
		datasetLen:      s.Dataset.Len(),
		historyLen:      s.History.Len(),
		iteration:       s.Iteration,
		numLowFidelity:  s.NumLowFidelity,
		numFoundExploit: s.NumFoundExploit,
		candidatePool:   s.CandidatePool,
	}
}

// rollback returns the state to m. Records appended after m are dropped.
func (s *SearchState) rollback(m stateMark) {
	s.MinTime = m.minTime
	s.AlphaMin = cloneVector(m.alphaMin)
	s.Dataset.truncate(m.datasetLen)
	s.History.truncate(m.historyLen)
	s.Iteration = m.iteration
	s.NumLowFidelity = m.numLowFidelity
	s.NumFoundExploit = m.numFoundExploit
	s.CandidatePool = m.candidatePool
}

// Check verifies the history invariant.
func (s *SearchState) Check() error {
	if !s.History.consistent() {
		return fmt.Errorf("%w: history arrays have different lengths", ErrConfiguration)
	}

	if s.History.Len() != s.Iteration+1 {
		return fmt.Errorf("%w: history has %d entries at iteration %d",
			ErrConfiguration, s.History.Len(), s.Iteration)
	}

	return nil
}

// Metrics computes the scalars emitted after an iteration.
func (s *SearchState) Metrics(agent string) IterationMetrics {
	m := IterationMetrics{
		Agent:           agent,
		Iteration:       s.Iteration,
		MinTime:         s.MinTime,
		NumLowFidelity:  s.NumLowFidelity,
		NumFoundExploit: s.NumFoundExploit,
	}

	minTimeIdx := 0

	for i := 0; i < s.History.Len(); i++ {
		if s.History.Fidelity[i] != FidelityHigh {
			continue
		}

		if s.History.Result[i] == 0 {
			m.NumFailures++
		}
	}

	for i := 0; i < s.History.Len(); i++ {
		if s.History.Fidelity[i] == FidelityHigh && s.History.MinTime[i] == s.MinTime {
			minTimeIdx = i

			break
		}
	}

	if s.History.Len() > 0 {
		m.RelQuality = s.History.Quality[minTimeIdx]
	}

	return m
}
