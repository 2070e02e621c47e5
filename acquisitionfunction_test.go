package mfbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPrediction(n int, prob float64) Prediction {
	p := Prediction{
		Mean:     make([]float64, n),
		Variance: make([]float64, n),
		Prob:     make([]float64, n),
	}

	for i := 0; i < n; i++ {
		p.Mean[i] = prob - 0.5
		p.Variance[i] = 0.25
		p.Prob[i] = prob
	}

	return p
}

func TestExploreScore(t *testing.T) {
	assert.InDelta(t, -0.4, ExploreScore(0.1, 0.25), 1e-6)
	assert.InDelta(t, -0.4, ExploreScore(-0.1, 0.25), 1e-6)

	// Collapsed variance stays finite but loses to any informative point.
	assert.Less(t, ExploreScore(0.1, 0), ExploreScore(0.9, 1))
}

func TestSelectNext_Exploit(t *testing.T) {
	batch := [][]float64{{0.2, 0.2}, {0.4, 0.4}, {0.1, 0.1}}
	pred := flatPrediction(3, 0.9)
	pred.Prob[2] = 0.1 // below 1-Delta

	sel, err := SelectNext(batch, pred, 1.0, testBounds(2), ones(2), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.Equal(t, 0, sel.Index)
	assert.True(t, sel.FoundByExploit)
	assert.Equal(t, 1.0, sel.TentativeTime, "exploit picks keep the current best time")
	assert.InDelta(t, 0.7, sel.ImpliedTime, 1e-12)
	assert.Equal(t, batch[0], sel.X)

	sel.X[0] = 0.99
	assert.Equal(t, 0.2, batch[0][0], "selection must not alias the batch")
}

func TestSelectNext_TieKeepsFirst(t *testing.T) {
	batch := [][]float64{{0.5, 0.5}, {0.2, 0.2}, {0.2, 0.2}}

	sel, err := SelectNext(batch, flatPrediction(3, 0.9), 1.0, testBounds(2), ones(2), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.Equal(t, 1, sel.Index)
	assert.True(t, sel.FoundByExploit)
}

func TestSelectNext_ExploreWhenNothingImproves(t *testing.T) {
	batch := [][]float64{{0.6, 0.6}, {0.5, 0.5}, {0.9, 0.9}}
	pred := Prediction{
		Mean:     []float64{0.4, 0.05, -0.3},
		Variance: []float64{0.25, 0.25, 0.25},
		Prob:     []float64{0.9, 0.9, 0.9},
	}

	sel, err := SelectNext(batch, pred, 1.0, testBounds(2), ones(2), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.Equal(t, 1, sel.Index)
	assert.False(t, sel.FoundByExploit)
	assert.InDelta(t, 1.0, sel.TentativeTime, 1e-12)
	assert.InDelta(t, sel.ImpliedTime, sel.TentativeTime, 1e-12)
}

func TestSelectNext_ExploreWhenUnlikelyFeasible(t *testing.T) {
	batch := [][]float64{{0.2, 0.2}, {0.3, 0.3}}
	pred := Prediction{
		Mean:     []float64{-0.4, -0.1},
		Variance: []float64{0.25, 0.25},
		Prob:     []float64{0.1, 0.15},
	}

	sel, err := SelectNext(batch, pred, 1.0, testBounds(2), ones(2), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.False(t, sel.FoundByExploit)
	assert.Equal(t, 1, sel.Index)
}

func TestSelectNext_Errors(t *testing.T) {
	params := DefaultAcquisitionParams()

	_, err := SelectNext(nil, Prediction{}, 1, testBounds(2), ones(2), params)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = SelectNext([][]float64{{0.1, 0.1}}, flatPrediction(2, 0.5), 1, testBounds(2), ones(2), params)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = SelectNext([][]float64{{0.1, 0.1}}, flatPrediction(1, 0.5), 1, testBounds(2), ones(3), params)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.NotPanics(t, func() {
		_, err = SelectNext([][]float64{{0.2, 0.2}, {0.3}}, flatPrediction(2, 0.5), 1, testBounds(2), ones(2), params)
	})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSelectNext_Scenarios(t *testing.T) {
	// With bounds [0.5, 1.5] and a single segment, the implied time of x is
	// 0.5+x, so {0.4}, {0}, {0.45} have times 0.9, 0.5 and 0.95.
	batch := [][]float64{{0.4}, {0}, {0.45}}

	tests := []struct {
		name        string
		pred        Prediction
		wantIdx     int
		wantExploit bool
	}{
		{
			name: "exploit skips the fast but unlikely candidate",
			pred: Prediction{
				Mean:     []float64{0.45, -0.1, 0.49},
				Variance: []float64{0.25, 0.25, 0.25},
				Prob:     []float64{0.95, 0.4, 0.99},
			},
			wantIdx:     0,
			wantExploit: true,
		},
		{
			name: "explore picks the uncertain boundary point",
			pred: Prediction{
				Mean:     []float64{0.1, 0.05, 0.2},
				Variance: []float64{0.01, 0.1, 0.5},
				Prob:     []float64{0.5, 0.5, 0.5},
			},
			wantIdx:     2,
			wantExploit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectNext(batch, tt.pred, 1.0, testBounds(1), ones(1), AcquisitionParams{Delta: 0.2, H: 0.001})
			require.NoError(t, err)

			assert.Equal(t, tt.wantIdx, sel.Index)
			assert.Equal(t, tt.wantExploit, sel.FoundByExploit)
		})
	}
}

func testScorer() JointScorer {
	return JointScorer{
		Bounds1: testBounds(2),
		Bounds2: testBounds(2),
		Basis1:  ones(2),
		Basis2:  ones(2),
	}
}

func TestJointScorer_Split(t *testing.T) {
	x1, x2 := testScorer().Split([]float64{1, 2, 3, 4})

	assert.Equal(t, []float64{1, 2}, x1)
	assert.Equal(t, []float64{3, 4}, x2)
}

func TestSelectJoint_Exploit(t *testing.T) {
	batch := [][]float64{
		{0.2, 0.2, 0.4, 0.4}, // times 0.7 and 0.9: bottleneck improves by 0.1
		{0.3, 0.3, 0.3, 0.3}, // times 0.8 and 0.8: improves by 0.2
	}
	pred := flatPrediction(2, 0.5)

	sel, err := SelectJoint(batch, pred, pred, pred, 1, 1, testScorer(), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.Equal(t, 1, sel.Index)
	assert.True(t, sel.FoundByExploit)
	assert.InDelta(t, 0.8, sel.Time1, 1e-12)
	assert.InDelta(t, 0.8, sel.Time2, 1e-12)
	assert.InDelta(t, 0.8, sel.ImpliedTime, 1e-12)
	assert.InDelta(t, 0.8, sel.TentativeTime, 1e-12)
}

func TestSelectJoint_BottleneckDecides(t *testing.T) {
	// Agent 1 is already fast; only improving on agent 2's time counts.
	batch := [][]float64{
		{0.1, 0.1, 0.5, 0.5}, // max time 1.0: no gain on the bottleneck
		{0.4, 0.4, 0.45, 0.45},
	}
	pred := flatPrediction(2, 0.5)

	sel, err := SelectJoint(batch, pred, pred, pred, 0.7, 1.0, testScorer(), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.Equal(t, 1, sel.Index)
	assert.True(t, sel.FoundByExploit)
	assert.InDelta(t, 0.95, sel.ImpliedTime, 1e-12)
}

func TestSelectJoint_ExploreBelowH(t *testing.T) {
	batch := [][]float64{
		{0.2, 0.2, 0.2, 0.2},
		{0.3, 0.3, 0.3, 0.3},
	}

	pred1 := Prediction{
		Mean:     []float64{-0.45, -0.05},
		Variance: []float64{0.25, 0.25},
		Prob:     []float64{0.05, 0.05},
	}
	pred := flatPrediction(2, 0.05)

	// 0.05^3 is below H.
	sel, err := SelectJoint(batch, pred1, pred, pred, 1, 1, testScorer(), DefaultAcquisitionParams())
	require.NoError(t, err)

	assert.False(t, sel.FoundByExploit)
	assert.Equal(t, 1, sel.Index)
}

func TestSelectJoint_Errors(t *testing.T) {
	params := DefaultAcquisitionParams()
	pred := flatPrediction(1, 0.5)

	_, err := SelectJoint(nil, pred, pred, pred, 1, 1, testScorer(), params)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = SelectJoint([][]float64{{0.1, 0.1, 0.1}}, pred, pred, pred, 1, 1, testScorer(), params)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = SelectJoint([][]float64{{0.1, 0.1, 0.1, 0.1}}, pred, flatPrediction(2, 0.5), pred, 1, 1, testScorer(), params)
	assert.ErrorIs(t, err, ErrConfiguration)
}
