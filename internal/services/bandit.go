package services

import (
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/talentpitch/searchrec/pkg/models"
)

// FeatureDim is the context dimensionality shared by all bandits.
const FeatureDim = 18

const (
	banditRidge       = 1e-3
	banditColdBonus   = 0.7
	banditColdCutoff  = 10
	banditWindow      = 50
	banditHistoryMax  = 1000
	banditHistoryKeep = 500
)

// LinUCB is a contextual bandit with adaptive exploration. One instance
// exists per slot category; it is the only mutable state that survives
// across requests, so all access goes through its lock.
type LinUCB struct {
	mu       sync.Mutex
	category string
	alpha    float64
	beta     float64
	d        int

	a     *mat.Dense
	aInv  *mat.Dense
	b     *mat.VecDense
	theta *mat.VecDense

	rewards  []float64
	contexts [][]float64

	logger *logrus.Logger
}

func NewLinUCB(category string, alpha, beta float64, logger *logrus.Logger) *LinUCB {
	d := FeatureDim
	bandit := &LinUCB{
		category: category,
		alpha:    alpha,
		beta:     beta,
		d:        d,
		a:        identity(d),
		aInv:     identity(d),
		b:        mat.NewVecDense(d, nil),
		theta:    mat.NewVecDense(d, nil),
		logger:   logger,
	}
	return bandit
}

func identity(d int) *mat.Dense {
	m := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// ScoreBatch returns the UCB score for each row of contexts:
// X·θ + α·sqrt(rowwise(X·A⁻¹·Xᵀ)) + adaptive exploration bonus.
func (l *LinUCB) ScoreBatch(contexts *mat.Dense, rng *rand.Rand) []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, _ := contexts.Dims()
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}

	var pred mat.VecDense
	pred.MulVec(contexts, l.theta)

	var proj mat.Dense
	proj.Mul(contexts, l.aInv)

	bonusScale := -1.0
	if len(l.rewards) >= banditColdCutoff {
		window := l.rewards
		if len(window) > banditWindow {
			window = window[len(window)-banditWindow:]
		}
		bonusScale = l.beta * stat.PopVariance(window, nil) * 1.3
	}

	for i := 0; i < n; i++ {
		var conf float64
		for j := 0; j < l.d; j++ {
			conf += proj.At(i, j) * contexts.At(i, j)
		}
		if conf < 0 {
			conf = 0
		}
		bonus := banditColdBonus
		if bonusScale >= 0 {
			bonus = bonusScale * rng.Float64()
		}
		scores[i] = pred.AtVec(i) + l.alpha*math.Sqrt(conf) + bonus
	}
	return scores
}

// Predict returns the exploitation term x·θ alone.
func (l *LinUCB) Predict(x []float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return mat.Dot(mat.NewVecDense(l.d, x), l.theta)
}

// Update folds an observed (context, reward) pair into the model:
// A += xxᵀ, b += r·x, A⁻¹ = (A + λI)⁻¹.
func (l *LinUCB) Update(x []float64, reward float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	xv := mat.NewVecDense(l.d, x)
	l.a.RankOne(l.a, 1, xv, xv)
	l.b.AddScaledVec(l.b, reward, xv)

	var reg mat.Dense
	reg.CloneFrom(l.a)
	for i := 0; i < l.d; i++ {
		reg.Set(i, i, reg.At(i, i)+banditRidge)
	}
	var inv mat.Dense
	if err := inv.Inverse(&reg); err != nil {
		// Not expected with the ridge term; keep the previous inverse.
		l.logger.WithField("category", l.category).WithError(err).
			Warn("Bandit matrix inversion failed, keeping previous state")
	} else {
		l.aInv.CloneFrom(&inv)
	}
	l.theta.MulVec(l.aInv, l.b)

	ctx := make([]float64, l.d)
	copy(ctx, x)
	l.contexts = append(l.contexts, ctx)
	l.rewards = append(l.rewards, reward)
	if len(l.rewards) > banditHistoryMax {
		l.rewards = append([]float64(nil), l.rewards[len(l.rewards)-banditHistoryKeep:]...)
		l.contexts = append([][]float64(nil), l.contexts[len(l.contexts)-banditHistoryKeep:]...)
	}
}

// Stats summarizes observed rewards overall and over the recent window.
func (l *LinUCB) Stats() models.BanditStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := models.BanditStats{TotalSelections: len(l.rewards)}
	if len(l.rewards) == 0 {
		return stats
	}
	stats.AvgReward = stat.Mean(l.rewards, nil)
	window := l.rewards
	if len(window) > banditWindow {
		window = window[len(window)-banditWindow:]
	}
	stats.RecentAvg = stat.Mean(window, nil)
	return stats
}

// HistoryLen reports the current reward-history length.
func (l *LinUCB) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rewards)
}
