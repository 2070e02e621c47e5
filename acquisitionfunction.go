package mfbo

import (
	"fmt"
	"math"
)

//////
// Acquisition policies.
// Each policy picks exactly one candidate from a batch, balancing
// exploitation (shrink the best known feasible time) and exploration (sample
// where the surrogate is least certain).
//////

// AcquisitionParams holds the thresholds of the acquisition policies.
type AcquisitionParams struct {
	// Delta is the confidence margin of the single agent exploit rule. A
	// candidate qualifies for exploitation when its feasibility probability
	// exceeds 1 - Delta.
	// Default: 0.8 (qualify above 0.2).
	Delta float64 `yaml:"delta"`

	// H is the feasibility probability a joint candidate must exceed to be
	// exploited by the two agent policy.
	// Default: 0.001.
	H float64 `yaml:"h"`
}

// DefaultAcquisitionParams returns the default thresholds.
func DefaultAcquisitionParams() AcquisitionParams {
	return AcquisitionParams{
		Delta: 0.8,
		H:     0.001,
	}
}

// Selection is the outcome of a policy.
type Selection struct {
	// Index is the position of the pick in the candidate batch.
	Index int

	// X is a copy of the picked normalized vector.
	X []float64

	// FoundByExploit reports whether the exploit rule produced the pick.
	FoundByExploit bool

	// TentativeTime is the time estimate reported with the pick. For
	// exploit picks it is the unchanged best time: the exploit rule proposes,
	// the evaluator confirms.
	TentativeTime float64

	// ImpliedTime is the trajectory time of the picked vector.
	ImpliedTime float64
}

// ExploreScore is the exploration value of one candidate:
//
//	-|mean| / (variance + 1e-9)
//
// Points near the decision boundary (mean close to zero) with large variance
// score highest. Zero variance makes the score very negative, so training
// points and saturated regions never win against informative candidates.
func ExploreScore(mean, variance float64) float64 {
	return -math.Abs(mean) / (variance + explorationEpsilon)
}

// ExploitScore is the single agent exploit value: the time improvement over
// the current best weighted by the feasibility probability.
func ExploitScore(minTime, impliedTime, prob float64) float64 {
	return (minTime - impliedTime) * prob
}

// SelectNext runs the single agent policy.
//
// How it works:
//  1. Exploit scan: every candidate with prob > 1-Delta and a strictly
//     positive ExploitScore competes; the first index reaching the maximum
//     wins.
//  2. Explore fallback: when nothing qualifies, the first argmax of
//     ExploreScore wins.
//
// Returns ErrEmptyBatch for an empty batch and ErrConfiguration when the
// prediction or a candidate does not match the batch dimensions.
func SelectNext(
	batch [][]float64,
	pred Prediction,
	minTime float64,
	bounds Bounds,
	basis []float64,
	params AcquisitionParams,
) (Selection, error) {
	if len(batch) == 0 {
		return Selection{}, ErrEmptyBatch
	}

	if err := pred.validate(len(batch)); err != nil {
		return Selection{}, err
	}

	if len(basis) != bounds.Dim() {
		return Selection{}, fmt.Errorf("%w: time basis of length %d for bounds of dimension %d",
			ErrConfiguration, len(basis), bounds.Dim())
	}

	bestIdx := -1
	bestScore := 0.0
	qualify := 1 - params.Delta

	times := make([]float64, len(batch))
	for i, x := range batch {
		if len(x) != bounds.Dim() {
			return Selection{}, fmt.Errorf("%w: candidate %d has length %d, expected %d",
				ErrConfiguration, i, len(x), bounds.Dim())
		}

		times[i] = ImpliedTime(x, bounds, basis)

		score := ExploitScore(minTime, times[i], pred.Prob[i])
		if score > bestScore && pred.Prob[i] > qualify {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx != -1 {
		return Selection{
			Index:          bestIdx,
			X:              cloneVector(batch[bestIdx]),
			FoundByExploit: true,
			TentativeTime:  minTime,
			ImpliedTime:    times[bestIdx],
		}, nil
	}

	explore := make([]float64, len(batch))
	for i := range batch {
		explore[i] = ExploreScore(pred.Mean[i], pred.Variance[i])
	}

	idx := argmax(explore)
	if idx == -1 {
		idx = 0
	}

	return Selection{
		Index:          idx,
		X:              cloneVector(batch[idx]),
		FoundByExploit: false,
		TentativeTime:  times[idx],
		ImpliedTime:    times[idx],
	}, nil
}

// JointSelection is the outcome of the two agent policy.
type JointSelection struct {
	Selection

	// Time1 and Time2 are the implied times of the two sub-vectors.
	Time1 float64
	Time2 float64
}

// JointScorer holds what the two agent policy needs to split a joint vector.
type JointScorer struct {
	Bounds1, Bounds2 Bounds
	Basis1, Basis2   []float64
}

// Split returns the agent 1 and agent 2 sub-vectors of a joint vector.
func (s JointScorer) Split(x []float64) ([]float64, []float64) {
	d1 := s.Bounds1.Dim()

	return x[:d1], x[d1:]
}

// SelectJoint runs the two agent policy over a joint batch.
//
// How it works:
//   - explore_i = -(|m1|/(v1+eps) + |m2|/(v2+eps)) - |m12|/(v12+eps)
//   - alpha_ei_i = max(best1, best2) - max(time1_i, time2_i): only an
//     improvement of the bottleneck agent counts
//   - prob_i = p1_i * p2_i * p12_i
//   - exploit: first argmax of alpha_ei_i * prob_i over candidates with
//     prob_i > H and a strictly positive score
//   - otherwise the first argmax of explore_i.
func SelectJoint(
	batch [][]float64,
	pred1, pred2, pred12 Prediction,
	best1, best2 float64,
	scorer JointScorer,
	params AcquisitionParams,
) (JointSelection, error) {
	if len(batch) == 0 {
		return JointSelection{}, ErrEmptyBatch
	}

	for _, p := range []Prediction{pred1, pred2, pred12} {
		if err := p.validate(len(batch)); err != nil {
			return JointSelection{}, err
		}
	}

	d := scorer.Bounds1.Dim() + scorer.Bounds2.Dim()

	bestIdx := -1
	bestScore := 0.0
	bottleneck := math.Max(best1, best2)

	times1 := make([]float64, len(batch))
	times2 := make([]float64, len(batch))

	for i, x := range batch {
		if len(x) != d {
			return JointSelection{}, fmt.Errorf("%w: joint vector of length %d, expected %d",
				ErrConfiguration, len(x), d)
		}

		x1, x2 := scorer.Split(x)
		times1[i] = ImpliedTime(x1, scorer.Bounds1, scorer.Basis1)
		times2[i] = ImpliedTime(x2, scorer.Bounds2, scorer.Basis2)

		alphaEI := bottleneck - math.Max(times1[i], times2[i])
		prob := pred1.Prob[i] * pred2.Prob[i] * pred12.Prob[i]

		score := alphaEI * prob
		if score > bestScore && prob > params.H {
			bestScore = score
			bestIdx = i
		}
	}

	found := bestIdx != -1

	if !found {
		explore := make([]float64, len(batch))
		for i := range batch {
			explore[i] = ExploreScore(pred1.Mean[i], pred1.Variance[i]) +
				ExploreScore(pred2.Mean[i], pred2.Variance[i]) +
				ExploreScore(pred12.Mean[i], pred12.Variance[i])
		}

		bestIdx = argmax(explore)
		if bestIdx == -1 {
			bestIdx = 0
		}
	}

	implied := math.Max(times1[bestIdx], times2[bestIdx])

	return JointSelection{
		Selection: Selection{
			Index:          bestIdx,
			X:              cloneVector(batch[bestIdx]),
			FoundByExploit: found,
			TentativeTime:  implied,
			ImpliedTime:    implied,
		},
		Time1: times1[bestIdx],
		Time2: times2[bestIdx],
	}, nil
}
