// Package config loads the YAML run configuration and turns it into the
// configurations of the search, its agents and its checkpoint store.
package config

import (
	"fmt"

	"github.com/thalesfsp/mfbo"
	"github.com/thalesfsp/mfbo/internal/sim"
	"github.com/thalesfsp/mfbo/logging"
	"github.com/thalesfsp/mfbo/store"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config is the root of a run configuration file.
type Config struct {
	// RunID labels logs and checkpoints. Empty means a fresh id per run.
	RunID string `yaml:"run_id"`

	// Seed is the base seed of every random draw of the run.
	Seed int64 `yaml:"seed"`

	Logging     logging.Config         `yaml:"logging"`
	Store       StoreConfig            `yaml:"store"`
	Acquisition mfbo.AcquisitionParams `yaml:"acquisition"`
	Retry       mfbo.RetryConfig       `yaml:"retry"`
	Single      SingleConfig           `yaml:"single"`
	Joint       JointSection           `yaml:"joint"`
}

// StoreConfig selects the checkpoint backend.
type StoreConfig struct {
	// Backend is one of memory, file, badger or sqlite.
	Backend string `yaml:"backend"`

	// Path is the directory (file, badger) or database file (sqlite).
	Path string `yaml:"path"`

	// SyncWrites fsyncs every badger commit.
	SyncWrites bool `yaml:"sync_writes"`
}

// AgentSpec describes one drone.
type AgentSpec struct {
	Name string `yaml:"name"`

	// Dim is the number of segments. Used with MinScale and MaxScale when
	// Bounds is not given.
	Dim      int     `yaml:"dim"`
	MinScale float64 `yaml:"min_scale"`
	MaxScale float64 `yaml:"max_scale"`

	// Bounds overrides the uniform bounds built from Dim.
	Bounds mfbo.Bounds `yaml:"bounds"`

	// TimeBasis defaults to one second per segment.
	TimeBasis []float64 `yaml:"time_basis"`

	SamplingMode int                        `yaml:"sampling_mode"`
	Surrogate    mfbo.GaussianProcessConfig `yaml:"surrogate"`
	Oracle       sim.DynamicsConfig         `yaml:"oracle"`
}

// SingleConfig configures the single agent search.
type SingleConfig struct {
	Iterations    int                       `yaml:"iterations"`
	NumCandidates int                       `yaml:"num_candidates"`
	CheckpointKey string                    `yaml:"checkpoint_key"`
	Agent         AgentSpec                 `yaml:"agent"`
	Initial       mfbo.InitialDatasetConfig `yaml:"initial"`
}

// PairSpec describes the joint agent.
type PairSpec struct {
	SamplingMode int                        `yaml:"sampling_mode"`
	Surrogate    mfbo.GaussianProcessConfig `yaml:"surrogate"`
	Oracle       sim.SeparationConfig       `yaml:"oracle"`
}

// JointSection configures the two agent search.
type JointSection struct {
	MinIters          int                       `yaml:"min_iters"`
	MaxIters          int                       `yaml:"max_iters"`
	ReconcileBestTime bool                      `yaml:"reconcile_best_time"`
	CheckpointKey     string                    `yaml:"checkpoint_key"`
	Drone1            AgentSpec                 `yaml:"drone_1"`
	Drone2            AgentSpec                 `yaml:"drone_2"`
	Pair              PairSpec                  `yaml:"pair"`
	Generator         mfbo.JointConfig          `yaml:"generator"`
	Initial           mfbo.InitialDatasetConfig `yaml:"initial"`
}

func defaultAgentSpec(name string) AgentSpec {
	return AgentSpec{
		Name:      name,
		Dim:       4,
		MinScale:  0.6,
		MaxScale:  1.4,
		TimeBasis: []float64{1.2, 0.8, 1.0, 1.1},
		Oracle: sim.DynamicsConfig{
			MinSegmentTime: []float64{0.9, 0.6, 0.75, 0.8},
			MaxLoad:        1,
		},
	}
}

// Default returns a complete configuration for a four segment demo.
func Default() *Config {
	loop := mfbo.DefaultConfig()
	two := mfbo.DefaultTwoAgentConfig()

	return &Config{
		Seed: loop.Seed,
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "runs",
		},
		Acquisition: mfbo.DefaultAcquisitionParams(),
		Retry:       mfbo.DefaultRetryConfig(),
		Single: SingleConfig{
			Iterations:    loop.Iterations,
			NumCandidates: loop.NumCandidates,
			CheckpointKey: loop.CheckpointKey,
			Agent:         defaultAgentSpec("drone-1"),
			Initial:       mfbo.DefaultInitialDatasetConfig(),
		},
		Joint: JointSection{
			MinIters:      two.MinIters,
			MaxIters:      two.MaxIters,
			CheckpointKey: two.CheckpointKey,
			Drone1:        defaultAgentSpec("drone-1"),
			Drone2:        defaultAgentSpec("drone-2"),
			Pair: PairSpec{
				Oracle: sim.SeparationConfig{Crossing: 1, MinGap: 0.2},
			},
			Generator: mfbo.DefaultJointConfig(),
			Initial:   mfbo.DefaultInitialDatasetConfig(),
		},
	}
}

//////
// Builders.
//////

// AgentBounds returns the explicit bounds, or uniform bounds over Dim
// segments.
func (a AgentSpec) AgentBounds() mfbo.Bounds {
	if len(a.Bounds.Lower) > 0 {
		return a.Bounds
	}

	return mfbo.UniformBounds(a.Dim, mfbo.ParameterRange[float64]{Min: a.MinScale, Max: a.MaxScale})
}

// Basis returns the time basis, one second per segment when unset.
func (a AgentSpec) Basis() []float64 {
	if len(a.TimeBasis) > 0 {
		return append([]float64(nil), a.TimeBasis...)
	}

	basis := make([]float64, a.AgentBounds().Dim())
	for i := range basis {
		basis[i] = 1
	}

	return basis
}

// AgentConfig returns the mfbo agent configuration with a fresh surrogate.
func (a AgentSpec) AgentConfig() mfbo.AgentConfig {
	return mfbo.AgentConfig{
		Name:         a.Name,
		Bounds:       a.AgentBounds(),
		TimeBasis:    a.Basis(),
		SamplingMode: a.SamplingMode,
		Surrogate:    mfbo.NewGaussianProcess(a.Surrogate),
	}
}

// NewOracle returns the analytic dynamics oracle of the drone.
func (a AgentSpec) NewOracle() (*sim.Dynamics, error) {
	return sim.NewDynamics(a.AgentBounds(), a.Basis(), a.Oracle)
}

// PairAgentConfig returns the joint agent configuration: the bounds and time
// basis of drone 1 followed by those of drone 2.
func (j JointSection) PairAgentConfig() mfbo.AgentConfig {
	b1, b2 := j.Drone1.AgentBounds(), j.Drone2.AgentBounds()

	return mfbo.AgentConfig{
		Name: "pair",
		Bounds: mfbo.Bounds{
			Lower: append(append([]float64(nil), b1.Lower...), b2.Lower...),
			Upper: append(append([]float64(nil), b1.Upper...), b2.Upper...),
		},
		TimeBasis:    append(j.Drone1.Basis(), j.Drone2.Basis()...),
		SamplingMode: j.Pair.SamplingMode,
		Surrogate:    mfbo.NewGaussianProcess(j.Pair.Surrogate),
	}
}

// NewPairOracle returns the analytic separation oracle of the pair.
func (j JointSection) NewPairOracle() (*sim.Separation, error) {
	return sim.NewSeparation(
		j.Drone1.AgentBounds(), j.Drone2.AgentBounds(),
		j.Drone1.Basis(), j.Drone2.Basis(),
		j.Pair.Oracle,
	)
}

// LoopConfig returns the single agent loop configuration. Store, metrics and
// progress reporting are left for the caller to wire.
func (c *Config) LoopConfig() mfbo.LoopConfig {
	cfg := mfbo.DefaultConfig()
	cfg.Iterations = c.Single.Iterations
	cfg.NumCandidates = c.Single.NumCandidates
	cfg.Seed = c.Seed
	cfg.Params = c.Acquisition
	cfg.RunID = c.RunID
	cfg.CheckpointKey = c.Single.CheckpointKey

	return cfg
}

// TwoAgentConfig returns the two agent controller configuration.
func (c *Config) TwoAgentConfig() mfbo.TwoAgentConfig {
	cfg := mfbo.DefaultTwoAgentConfig()
	cfg.MinIters = c.Joint.MinIters
	cfg.MaxIters = c.Joint.MaxIters
	cfg.Seed = c.Seed
	cfg.Params = c.Acquisition
	cfg.ReconcileBestTime = c.Joint.ReconcileBestTime
	cfg.RunID = c.RunID
	cfg.CheckpointKey = c.Joint.CheckpointKey

	return cfg
}

// JointConfig returns the generator configuration. The reallocation basis
// defaults to the time basis of drone 1.
func (c *Config) JointConfig() mfbo.JointConfig {
	cfg := c.Joint.Generator
	if len(cfg.TSetSta) == 0 {
		cfg.TSetSta = c.Joint.Drone1.Basis()
	}

	return cfg
}

// OpenStore opens the configured checkpoint backend.
func (s StoreConfig) OpenStore() (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch s.Backend {
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendFile:
		var fs *store.FileStore
		fs, err = store.NewFileStore(s.Path)
		st = fs
	case BackendBadger:
		var bs *store.BadgerStore
		bs, err = store.NewBadgerStore(store.BadgerConfig{Dir: s.Path, SyncWrites: s.SyncWrites})
		st = bs
	case BackendSQLite:
		var ss *store.SQLiteStore
		ss, err = store.NewSQLiteStore(store.DefaultSQLiteConfig(s.Path))
		st = ss
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", mfbo.ErrConfiguration, s.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("open %s store at %q: %w", s.Backend, s.Path, err)
	}

	return st, nil
}
