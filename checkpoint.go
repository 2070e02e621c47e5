package mfbo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/mfbo/store"
)

// SnapshotVersion is the checkpoint format version.
const SnapshotVersion = 1

// CheckpointStore is the subset of store.Store the search needs.
type CheckpointStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// AgentSnapshot is the persisted form of one agent's SearchState.
type AgentSnapshot struct {
	Name            string              `yaml:"name"`
	Dim             int                 `yaml:"dim"`
	Iteration       int                 `yaml:"iteration"`
	MinTime         float64             `yaml:"min_time"`
	AlphaMin        []float64           `yaml:"alpha_min"`
	NumLowFidelity  int                 `yaml:"N_low_fidelity"`
	NumFoundExploit int                 `yaml:"N_found_exploit"`
	Dataset         []FeasibilityRecord `yaml:"dataset"`
	CandidatePool   [][]float64         `yaml:"X_cand,omitempty"`
	History         History             `yaml:"history"`
}

// Snapshot is everything needed to resume a run. StartIter is the next
// iteration to execute.
type Snapshot struct {
	Version   int                `yaml:"version"`
	RunID     string             `yaml:"run_id"`
	Seed      int64              `yaml:"seed"`
	StartIter int                `yaml:"start_iter"`
	Agents    []AgentSnapshot    `yaml:"agents"`
	C1        *AdaptiveThreshold `yaml:"c_1,omitempty"`
	C2        *AdaptiveThreshold `yaml:"c_2,omitempty"`
}

func snapshotAgent(a *Agent) AgentSnapshot {
	s := a.State()

	return AgentSnapshot{
		Name:            a.Name(),
		Dim:             a.Dim(),
		Iteration:       s.Iteration,
		MinTime:         s.MinTime,
		AlphaMin:        cloneVector(s.AlphaMin),
		NumLowFidelity:  s.NumLowFidelity,
		NumFoundExploit: s.NumFoundExploit,
		Dataset:         s.Dataset.Records(),
		CandidatePool:   cloneMatrix(s.CandidatePool),
		History:         s.History.clone(),
	}
}

// state rebuilds the SearchState.
func (s AgentSnapshot) state() (*SearchState, error) {
	ds := NewFeasibilityDataset(s.Dim)

	for _, r := range s.Dataset {
		if err := ds.Append(r); err != nil {
			return nil, fmt.Errorf("agent %q dataset: %w", s.Name, err)
		}
	}

	st := &SearchState{
		MinTime:         s.MinTime,
		AlphaMin:        cloneVector(s.AlphaMin),
		Dataset:         ds,
		Iteration:       s.Iteration,
		History:         s.History.clone(),
		NumLowFidelity:  s.NumLowFidelity,
		NumFoundExploit: s.NumFoundExploit,
		CandidatePool:   cloneMatrix(s.CandidatePool),
	}

	if len(st.AlphaMin) != s.Dim {
		return nil, fmt.Errorf("%w: agent %q alpha_min has length %d, dimension %d",
			ErrConfiguration, s.Name, len(st.AlphaMin), s.Dim)
	}

	if err := st.Check(); err != nil {
		return nil, fmt.Errorf("agent %q: %w", s.Name, err)
	}

	return st, nil
}

// restoreAgents applies the snapshot to agents, matched by position and name.
func (s *Snapshot) restoreAgents(agents ...*Agent) error {
	if len(s.Agents) != len(agents) {
		return fmt.Errorf("%w: checkpoint has %d agents, run has %d", ErrConfiguration, len(s.Agents), len(agents))
	}

	states := make([]*SearchState, len(agents))

	for i, a := range agents {
		if s.Agents[i].Name != a.Name() {
			return fmt.Errorf("%w: checkpoint agent %d is %q, run has %q",
				ErrConfiguration, i, s.Agents[i].Name, a.Name())
		}

		if s.Agents[i].Dim != a.Dim() {
			return fmt.Errorf("%w: checkpoint agent %q has dimension %d, run has %d",
				ErrConfiguration, a.Name(), s.Agents[i].Dim, a.Dim())
		}

		st, err := s.Agents[i].state()
		if err != nil {
			return err
		}

		states[i] = st
	}

	// All or nothing.
	for i, a := range agents {
		if err := a.restore(states[i]); err != nil {
			return err
		}
	}

	return nil
}

// EncodeSnapshot renders s as YAML.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	s.Version = SnapshotVersion

	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %w", ErrPersistence, err)
	}

	return data, nil
}

// DecodeSnapshot parses a YAML checkpoint.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot

	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %w", ErrPersistence, err)
	}

	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrPersistence, s.Version)
	}

	return &s, nil
}

// SaveSnapshot encodes s and writes it under key. Failures wrap
// ErrPersistence; the caller must not treat the iteration as committed.
func SaveSnapshot(ctx context.Context, st CheckpointStore, key string, s *Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}

	if err := st.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: write checkpoint %q: %w", ErrPersistence, key, err)
	}

	return nil
}

// LoadSnapshot reads the checkpoint under key. A missing checkpoint yields an
// error wrapping store.ErrNotFound.
func LoadSnapshot(ctx context.Context, st CheckpointStore, key string) (*Snapshot, error) {
	data, err := st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checkpoint %q: %w", key, err)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: read checkpoint %q: %w", ErrPersistence, key, err)
	}

	return DecodeSnapshot(data)
}

//////
// Result summary.
//////

// MarshalResultSummary renders the per-iteration summary. High fidelity
// entries are keyed iter{h} with h counting high fidelity entries from zero;
// low fidelity entries are keyed iter{h-1}_{l} beneath the preceding high
// fidelity entry.
func MarshalResultSummary(h History) ([]byte, error) {
	if !h.consistent() {
		return nil, fmt.Errorf("%w: history arrays have different lengths", ErrConfiguration)
	}

	root := &yaml.Node{Kind: yaml.MappingNode}

	high, low := 0, 0

	for i := 0; i < h.Len(); i++ {
		var key string

		if h.Fidelity[i] == FidelityHigh {
			key = "iter" + strconv.Itoa(high)
			high++
			low = 0
		} else {
			key = "iter" + strconv.Itoa(high-1) + "_" + strconv.Itoa(low)
			low++
		}

		alpha := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range h.AlphaCand[i] {
			alpha.Content = append(alpha.Content, floatNode(v))
		}

		entry := &yaml.Node{Kind: yaml.MappingNode}
		entry.Content = append(entry.Content,
			strNode("found_ei"), intNode(h.FoundExploit[i]),
			strNode("exp_result"), intNode(h.Result[i]),
			strNode("rel_snap"), floatNode(h.Quality[i]),
			strNode("min_time"), floatNode(h.MinTime[i]),
			strNode("alpha_cand"), alpha,
		)

		root.Content = append(root.Content, strNode(key), entry)
	}

	out, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("%w: encode result summary: %w", ErrPersistence, err)
	}

	return out, nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func floatNode(v float64) *yaml.Node {
	var s string

	switch {
	case math.IsNaN(v):
		s = ".nan"
	case math.IsInf(v, 1):
		s = ".inf"
	case math.IsInf(v, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
	}

	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
}
