package mfbo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/thalesfsp/mfbo/logging"
)

// JointConfig configures the two agent candidate generator.
type JointConfig struct {
	// NS is the number of points drawn from an agent sampler per inner draw.
	NS int `yaml:"n_s"`

	// N1 is the number of accepted points collected per agent per round.
	N1 int `yaml:"n_1"`

	// N2 is the size of the joint candidate batch.
	N2 int `yaml:"n_2"`

	// C1 is the per-agent dynamic feasibility threshold.
	C1 AdaptiveThreshold `yaml:"c_1"`

	// C2 is the joint (collision) feasibility threshold.
	C2 AdaptiveThreshold `yaml:"c_2"`

	// TSetSta is the time basis of the reallocation transform. Its length is
	// the (even) per-agent dimension.
	TSetSta []float64 `yaml:"t_set_sta"`

	// MaxDrawRounds caps the draws spent collecting NS non-negative rescaled
	// points.
	MaxDrawRounds int `yaml:"max_draw_rounds"`

	// MaxRejectRounds caps the fully rejected rounds of every threshold loop.
	// Rounds that accept at least one candidate do not count.
	MaxRejectRounds int `yaml:"max_reject_rounds"`
}

// DefaultJointConfig returns the generator defaults; TSetSta must still be set.
func DefaultJointConfig() JointConfig {
	return JointConfig{
		NS:              2,
		N1:              5,
		N2:              128,
		C1:              DefaultAdaptiveThreshold(),
		C2:              DefaultAdaptiveThreshold(),
		MaxDrawRounds:   1000,
		MaxRejectRounds: 1000,
	}
}

// GeneratorStats describes the last Generate call.
type GeneratorStats struct {
	// C1Working and C2Working are the working thresholds the call ended with.
	C1Working float64
	C2Working float64

	// Starvations counts fully rejected rounds across all loops.
	Starvations int

	// Degraded reports that a cap was hit and the batch is best-effort.
	Degraded bool
}

// JointCandidateGenerator produces joint candidates whose per-agent halves are
// individually likely feasible and whose concatenation is likely collision
// free. The thresholds are fields of the generator; Generate reads and
// writes them explicitly.
type JointCandidateGenerator struct {
	cfg    JointConfig
	agent1 *Agent
	agent2 *Agent
	pair   *Agent
	c1     AdaptiveThreshold
	c2     AdaptiveThreshold
	stats  GeneratorStats
}

// NewJointCandidateGenerator validates cfg against the three agents.
func NewJointCandidateGenerator(cfg JointConfig, agent1, agent2, pair *Agent) (*JointCandidateGenerator, error) {
	if agent1 == nil || agent2 == nil || pair == nil {
		return nil, fmt.Errorf("%w: joint generator needs three agents", ErrConfiguration)
	}

	if cfg.NS <= 0 || cfg.N1 <= 0 || cfg.N2 <= 0 {
		return nil, fmt.Errorf("%w: n_s, n_1 and n_2 must be positive", ErrConfiguration)
	}

	if cfg.MaxDrawRounds <= 0 || cfg.MaxRejectRounds <= 0 {
		return nil, fmt.Errorf("%w: rejection caps must be positive", ErrConfiguration)
	}

	for _, th := range []AdaptiveThreshold{cfg.C1, cfg.C2} {
		if err := th.Validate(); err != nil {
			return nil, err
		}
	}

	d := agent1.Dim()

	if agent2.Dim() != d {
		return nil, fmt.Errorf("%w: agents have dimensions %d and %d", ErrConfiguration, d, agent2.Dim())
	}

	if d%2 != 0 {
		return nil, fmt.Errorf("%w: reallocation needs an even agent dimension, got %d", ErrConfiguration, d)
	}

	if len(cfg.TSetSta) != d {
		return nil, fmt.Errorf("%w: t_set_sta has length %d, agent dimension %d", ErrConfiguration, len(cfg.TSetSta), d)
	}

	if pair.Dim() != 2*d {
		return nil, fmt.Errorf("%w: pair agent has dimension %d, expected %d", ErrConfiguration, pair.Dim(), 2*d)
	}

	return &JointCandidateGenerator{
		cfg:    cfg,
		agent1: agent1,
		agent2: agent2,
		pair:   pair,
		c1:     cfg.C1,
		c2:     cfg.C2,
	}, nil
}

// Thresholds returns the current C1 and C2.
func (g *JointCandidateGenerator) Thresholds() (c1, c2 AdaptiveThreshold) {
	return g.c1, g.c2
}

// SetThresholds restores C1 and C2, e.g. from a checkpoint.
func (g *JointCandidateGenerator) SetThresholds(c1, c2 AdaptiveThreshold) error {
	for _, th := range []AdaptiveThreshold{c1, c2} {
		if err := th.Validate(); err != nil {
			return err
		}
	}

	g.c1, g.c2 = c1, c2

	return nil
}

// Stats returns statistics of the last Generate call.
func (g *JointCandidateGenerator) Stats() GeneratorStats {
	return g.stats
}

// Generate returns a joint batch of at most N2 rows, and exactly N2 unless a
// cap was hit. On a cap it returns a non-empty best-effort batch together with
// an error wrapping ErrRejectionCapExceeded. Any other error is fatal to the
// iteration.
func (g *JointCandidateGenerator) Generate(ctx context.Context, rng *rand.Rand) ([][]float64, error) {
	g.stats = GeneratorStats{}

	xf := g.agent1.Sampler().Sample(rng, 1)[0]

	working := g.c2.Nominal

	var (
		out       [][]float64
		lastJoint [][]float64
		capErr    error
	)

	rejected := 0

	for len(out) < g.cfg.N2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if rejected >= g.cfg.MaxRejectRounds {
			capErr = fmt.Errorf("%w: joint filter gave up after %d rejected rounds", ErrRejectionCapExceeded, rejected)

			break
		}

		x1, err := g.sampleAgent(ctx, rng, g.agent1, xf, &g.c1)
		if err != nil && !errors.Is(err, ErrRejectionCapExceeded) {
			return nil, err
		}

		capErr = err

		x2, err := g.sampleAgent(ctx, rng, g.agent2, xf, &g.c1)
		if err != nil && !errors.Is(err, ErrRejectionCapExceeded) {
			return nil, err
		}

		if err != nil {
			capErr = err
		}

		joint := pairRows(x1, x2)
		if len(joint) == 0 {
			break
		}

		lastJoint = joint

		pred, err := g.pair.Predict(ctx, joint)
		if err != nil {
			return nil, err
		}

		accepted := 0

		for i, row := range joint {
			if pred.Prob[i] > working {
				out = append(out, row)
				accepted++
			}
		}

		if accepted == 0 {
			rejected++
			working = g.starve(g.pair, "c_2", g.c2, working)
		}

		if capErr != nil {
			break
		}
	}

	g.stats.C2Working = working

	if capErr == nil && len(out) >= g.cfg.N2 {
		g.c2 = g.c2.Settle(working)

		return out[:g.cfg.N2], nil
	}

	if capErr == nil {
		capErr = fmt.Errorf("%w: agents produced no pairable candidates", ErrRejectionCapExceeded)
	}

	g.stats.Degraded = true

	if len(out) == 0 {
		out = lastJoint
	}

	if len(out) == 0 {
		out = g.unfiltered(rng)
	}

	if len(out) > g.cfg.N2 {
		out = out[:g.cfg.N2]
	}

	logging.Warn().
		Add(logging.Agent(g.pair.Name())).
		Add(logging.Count("candidates", len(out))).
		Add(logging.ErrorField(capErr)).
		Msg("joint candidate generation degraded")

	return out, capErr
}

// sampleAgent collects N1 rescaled points of one agent whose feasibility
// probability exceeds the working copy of th, relaxing it after every fully
// rejected round. th is settled in place when the call finishes without a cap.
func (g *JointCandidateGenerator) sampleAgent(
	ctx context.Context,
	rng *rand.Rand,
	agent *Agent,
	xf []float64,
	th *AdaptiveThreshold,
) ([][]float64, error) {
	working := th.Nominal

	var (
		accepted [][]float64
		last     [][]float64
	)

	rejected := 0

	for len(accepted) < g.cfg.N1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if rejected >= g.cfg.MaxRejectRounds {
			g.stats.C1Working = working

			return g.degradedAgentBatch(accepted, last), fmt.Errorf("%w: agent %q accepted %d of %d after %d rejected rounds",
				ErrRejectionCapExceeded, agent.Name(), len(accepted), g.cfg.N1, rejected)
		}

		pool, err := g.drawScaled(ctx, rng, agent, xf)
		if err != nil {
			g.stats.C1Working = working

			return g.degradedAgentBatch(accepted, last), err
		}

		last = pool

		pred, err := agent.Predict(ctx, pool)
		if err != nil {
			return nil, err
		}

		n := 0

		for i, x := range pool {
			if pred.Prob[i] > working {
				accepted = append(accepted, x)
				n++
			}
		}

		if n == 0 {
			rejected++
			working = g.starve(agent, "c_1", *th, working)
		}
	}

	g.stats.C1Working = working
	*th = th.Settle(working)

	return accepted[:g.cfg.N1], nil
}

func (g *JointCandidateGenerator) degradedAgentBatch(accepted, last [][]float64) [][]float64 {
	if len(accepted) > 0 {
		return accepted
	}

	return last
}

// drawScaled draws from the agent sampler until NS rescaled points without a
// negative component are collected.
func (g *JointCandidateGenerator) drawScaled(ctx context.Context, rng *rand.Rand, agent *Agent, xf []float64) ([][]float64, error) {
	pool := make([][]float64, 0, g.cfg.NS)

	for draw := 0; len(pool) < g.cfg.NS; draw++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if draw >= g.cfg.MaxDrawRounds {
			if len(pool) > 0 {
				return pool, nil
			}

			return nil, fmt.Errorf("%w: agent %q produced no non-negative rescaled point in %d draws",
				ErrRejectionCapExceeded, agent.Name(), draw)
		}

		batch := agent.Sampler().Sample(rng, g.cfg.NS)
		for _, x := range scaleToReference(batch, xf, g.cfg.TSetSta) {
			if validScaled(x) {
				pool = append(pool, x)
			}
		}
	}

	return pool, nil
}

func (g *JointCandidateGenerator) starve(agent *Agent, name string, th AdaptiveThreshold, working float64) float64 {
	g.stats.Starvations++

	next := th.Relax(working)

	logging.Warn().
		Add(logging.Agent(agent.Name())).
		Add(logging.Threshold(name, next)).
		Add(logging.ErrorField(ErrStarvation)).
		Msg("relaxing acceptance threshold")

	return next
}

// unfiltered is the last resort of a degraded call: raw, unscaled samples of
// both agents.
func (g *JointCandidateGenerator) unfiltered(rng *rand.Rand) [][]float64 {
	return pairRows(g.agent1.Sampler().Sample(rng, g.cfg.N2), g.agent2.Sampler().Sample(rng, g.cfg.N2))
}

// pairRows concatenates a[i] and b[i] for i up to the shorter slice.
func pairRows(a, b [][]float64) [][]float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, len(a[i])+len(b[i]))
		row = append(row, a[i]...)
		row = append(row, b[i]...)
		out[i] = row
	}

	return out
}

// scaleToReference reallocates every consecutive component pair (a, b) of the
// rows of x so that the pair keeps its ratio r = x[a]/x[b] while its weighted
// time matches the reference:
//
//	T     = xf[a]*t[a] + xf[b]*t[b]
//	x'[a] = T / (t[a] + t[b]/r)
//	x'[b] = T / (t[b] + t[a]*r)
//
// so that x'[a]*t[a] + x'[b]*t[b] = T and x'[a]/x'[b] = r.
func scaleToReference(x [][]float64, xf, tSet []float64) [][]float64 {
	out := make([][]float64, len(x))

	for n, row := range x {
		scaled := cloneVector(row)

		for a := 0; a+1 < len(row); a += 2 {
			b := a + 1

			total := xf[a]*tSet[a] + xf[b]*tSet[b]
			ratio := row[a] / row[b]

			scaled[a] = total / (tSet[a] + tSet[b]/ratio)
			scaled[b] = total / (tSet[b] + tSet[a]*ratio)
		}

		out[n] = scaled
	}

	return out
}

func validScaled(x []float64) bool {
	for _, v := range x {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}
