// Package mfbo drives an active learning search for the fastest dynamically
// feasible time allocation of one drone trajectory, or of a pair of drones
// flying together. Every iteration retrains a feasibility surrogate, picks one
// candidate, evaluates it with an external oracle and checkpoints the result,
// so a run can be interrupted and resumed at any iteration boundary.
//
// # Features
//
// The package includes the following key features:
//
//   - Exploit/explore acquisition: shrink the best known feasible time when
//     the surrogate is confident, otherwise sample where it is least certain
//   - Joint candidate generation: per-agent rejection sampling followed by a
//     collision filter, under adaptive thresholds that relax on starvation
//   - Resumable state: dataset, history and best allocation are persisted
//     after every evaluated point (file, BadgerDB, SQLite or memory stores)
//   - Deterministic runs: iteration i draws candidates from a generator
//     derived from (seed, i)
//   - Progress monitoring: non-blocking updates via channels
//
// # Single agent
//
//	agent, _ := mfbo.NewAgent(mfbo.AgentConfig{
//	    Name:      "drone-1",
//	    Bounds:    mfbo.UniformBounds(4, mfbo.ParameterRange[float64]{Min: 0.6, Max: 1.4}),
//	    TimeBasis: []float64{1.2, 0.8, 1.0, 1.1},
//	    Surrogate: mfbo.NewGaussianProcess(mfbo.GaussianProcessConfig{}),
//	}, dataset)
//
//	cfg := mfbo.DefaultConfig()
//	cfg.Store = store.NewMemoryStore()
//
//	loop, _ := mfbo.NewActiveLearningLoop(cfg, agent, evaluator)
//	_, _ = loop.Resume(ctx)
//	state, err := loop.Run(ctx)
//
// The exploit rule only proposes: a new best time is committed once the
// oracle confirms the pick as feasible.
//
// # Two agents
//
// TwoAgentController owns three agents (drone 1, drone 2 and the pair) and a
// JointCandidateGenerator. Picks are evaluated in stages (drone 1, drone 2,
// then the pair) and the joint label is recorded for all three. The best
// times of the two drones follow the pick before it is evaluated; set
// TwoAgentConfig.ReconcileBestTime to roll them back on an infeasible label.
//
// # Thresholds
//
// AdaptiveThreshold keeps the acceptance probability within (0, 0.8]. Within a
// sampling call a working copy drops by 0.01 after every fully rejected round
// down to a floor of 0.05. Across calls the nominal value only rises by 0.01
// after a call that never relaxed. Every rejection loop is capped; a capped
// call returns a best-effort batch with ErrRejectionCapExceeded.
package mfbo
