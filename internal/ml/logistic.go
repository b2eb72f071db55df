package ml

import (
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"holdoutbench/internal/common"
)

const (
	convergenceTolerance = 1e-6
	interceptJitter      = 1e-10
	maxStepHalvings      = 30
)

// LogisticRegression is an L2-regularised binary logistic regression fitted by
// Newton's method (iteratively reweighted least squares). The intercept is not
// penalised.
type LogisticRegression struct {
	c         float64
	maxIter   int
	balanced  bool
	threshold float64

	coef      []float64
	intercept float64
	fitted    bool
}

// NewLogisticRegression creates an unfitted model with inverse regularisation
// strength c.
func NewLogisticRegression(c float64, maxIter int, balanced bool, threshold float64) *LogisticRegression {
	return &LogisticRegression{c: c, maxIter: maxIter, balanced: balanced, threshold: threshold}
}

// Coefficients returns the fitted feature weights and intercept.
func (m *LogisticRegression) Coefficients() ([]float64, float64) {
	return append([]float64(nil), m.coef...), m.intercept
}

// Fit implements Classifier.
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	p, counts, err := checkTrainingSet(common.ModelLogisticRegression, x, y)
	if err != nil {
		return err
	}
	if counts[0] == 0 || counts[1] == 0 {
		return &TrainingError{Model: common.ModelLogisticRegression, Reason: "training labels contain a single class"}
	}

	n, d := len(x), p+1
	lambda := 1 / m.c

	// design matrix with a trailing intercept column
	xa := mat.NewDense(n, d, nil)
	target := make([]float64, n)
	weight := make([]float64, n)
	for i, row := range x {
		for j, v := range row {
			xa.Set(i, j, v)
		}
		xa.Set(i, p, 1)
		target[i] = float64(y[i])
		weight[i] = 1
		if m.balanced {
			weight[i] = float64(n) / (2 * float64(counts[y[i]]))
		}
	}

	beta := mat.NewVecDense(d, nil)
	eta := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)
	step := mat.NewVecDense(d, nil)
	xw := mat.NewDense(n, d, nil)
	hess := mat.NewSymDense(d, nil)
	var chol mat.Cholesky

	loss := m.objective(xa, beta, target, weight, lambda, eta)
	converged := false
	for iter := 0; iter < m.maxIter; iter++ {
		eta.MulVec(xa, beta)
		for i := 0; i < n; i++ {
			prob := sigmoid(eta.AtVec(i))
			resid.SetVec(i, weight[i]*(prob-target[i]))
			s := math.Sqrt(weight[i] * prob * (1 - prob))
			for j := 0; j < d; j++ {
				xw.Set(i, j, s*xa.At(i, j))
			}
		}

		grad.MulVec(xa.T(), resid)
		for j := 0; j < p; j++ {
			grad.SetVec(j, grad.AtVec(j)+lambda*beta.AtVec(j))
		}

		hess.SymOuterK(1, xw.T())
		for j := 0; j < p; j++ {
			hess.SetSym(j, j, hess.At(j, j)+lambda)
		}
		hess.SetSym(p, p, hess.At(p, p)+interceptJitter)

		if ok := chol.Factorize(hess); !ok {
			return &TrainingError{Model: common.ModelLogisticRegression, Reason: "hessian is not positive definite (singular design matrix)"}
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return &TrainingError{Model: common.ModelLogisticRegression, Reason: "newton step", Err: err}
		}

		// damped Newton update: halve the step until the objective does not increase
		scale := 1.0
		candidate := mat.NewVecDense(d, nil)
		var next float64
		for h := 0; ; h++ {
			candidate.AddScaledVec(beta, -scale, step)
			next = m.objective(xa, candidate, target, weight, lambda, eta)
			if next <= loss || h == maxStepHalvings {
				break
			}
			scale /= 2
		}
		beta.CopyVec(candidate)

		change := scale * mat.Norm(step, math.Inf(1))
		loss = next
		if change < convergenceTolerance {
			converged = true
			break
		}
	}

	raw := beta.RawVector().Data
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &TrainingError{Model: common.ModelLogisticRegression, Reason: "coefficients diverged"}
		}
	}
	if !converged {
		log.Warn().
			Int("max_iterations", m.maxIter).
			Float64("loss", loss).
			Msg("Logistic regression did not converge")
	}

	m.coef = make([]float64, p)
	copy(m.coef, raw[:p])
	m.intercept = raw[p]
	m.fitted = true
	return nil
}

// objective evaluates the weighted negative log-likelihood plus the L2
// penalty at beta. eta is scratch space of length n.
func (m *LogisticRegression) objective(xa *mat.Dense, beta *mat.VecDense, target, weight []float64, lambda float64, eta *mat.VecDense) float64 {
	eta.MulVec(xa, beta)
	var nll float64
	for i := range target {
		z := eta.AtVec(i)
		nll += weight[i] * (log1pExp(z) - target[i]*z)
	}
	var penalty float64
	for j := 0; j < beta.Len()-1; j++ {
		b := beta.AtVec(j)
		penalty += b * b
	}
	return nll + lambda/2*penalty
}

// PredictProbability implements Classifier.
func (m *LogisticRegression) PredictProbability(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = sigmoid(floats.Dot(m.coef, row) + m.intercept)
	}
	return out, nil
}

// PredictLabel implements Classifier.
func (m *LogisticRegression) PredictLabel(x [][]float64) ([]int, error) {
	probs, err := m.PredictProbability(x)
	if err != nil {
		return nil, err
	}
	return decide(probs, m.threshold), nil
}
