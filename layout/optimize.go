// Package layout runs the gradient-descent optimization of an
// embedding: momentum updates with per-coordinate adaptive gains,
// phase exaggeration, recentering, and scheduled callback invocation.
// The loop is strictly sequential across iterations; parallelism lives
// inside the gradient evaluation.
package layout

import (
	"math"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/gradient"
)

const (
	gainIncrease = 0.2
	gainDecay    = 0.8
	minGain      = 0.01
)

// Callback receives the iteration number, the current KL divergence and
// a snapshot of the coordinates. Returning false cancels the
// optimization at the next iteration boundary; the coordinates then
// reflect the last fully completed iteration. Callbacks must not
// mutate the coordinate buffer.
type Callback func(iteration int, klDivergence float64, coords [][]float64) bool

// Params configures one optimization phase.
type Params struct {
	// NIter is the iteration budget of the phase.
	NIter int
	// Exaggeration multiplies the attractive term for the whole phase.
	// Zero or one means no exaggeration.
	Exaggeration float64
	// Momentum of the velocity update.
	Momentum float64
	// LearningRate scales the gradient step.
	LearningRate float64
	// Gradient selects and configures the repulsive backend.
	Gradient gradient.Options
	// Callbacks are invoked in order every CallbacksEveryIters
	// iterations.
	Callbacks []Callback
	// CallbacksEveryIters is the callback cadence; 0 disables
	// callbacks.
	CallbacksEveryIters int
	// Recenter subtracts the coordinate mean after every iteration to
	// prevent drift. Disabled for partial embeddings, whose reference
	// frame is the fixed base.
	Recenter bool
	// IterOffset shifts the iteration numbers reported to callbacks,
	// so numbering is cumulative across phases.
	IterOffset int
}

// DefaultParams returns the main-phase defaults.
func DefaultParams() Params {
	return Params{
		NIter:               750,
		Exaggeration:        1,
		Momentum:            0.8,
		LearningRate:        200,
		CallbacksEveryIters: 50,
		Recenter:            true,
	}
}

// GradientDescent runs one optimization phase over coords, mutating
// coords, gains and velocity in place. ref is nil for full embeddings;
// for partial embeddings it holds the base coordinates, which are
// never written to. Returns the KL divergence of the last completed
// iteration.
func GradientDescent(coords, ref, gains, velocity [][]float64, p *affinity.CSR, cfg Params) (float64, error) {
	kl := math.NaN()
	if len(coords) == 0 || cfg.NIter == 0 {
		return kl, nil
	}
	dim := len(coords[0])

	opts := cfg.Gradient
	opts.Exaggeration = cfg.Exaggeration

	for iter := 0; iter < cfg.NIter; iter++ {
		lastIter := iter == cfg.NIter-1
		callbacksDue := cfg.CallbacksEveryIters > 0 &&
			len(cfg.Callbacks) > 0 &&
			(iter+1)%cfg.CallbacksEveryIters == 0

		// The log terms of the KL value are pure overhead unless
		// someone will look at the result this iteration.
		opts.ComputeError = callbacksDue || lastIter

		iterKL, grad, err := gradient.Compute(p, coords, ref, opts)
		if err != nil {
			return kl, err
		}
		if opts.ComputeError {
			kl = iterKL
		}

		for i := range coords {
			for d := 0; d < dim; d++ {
				// Gains grow while the gradient keeps pointing against
				// the current velocity and shrink when it flips.
				if grad[i][d]*velocity[i][d] < 0 {
					gains[i][d] += gainIncrease
				} else {
					gains[i][d] *= gainDecay
				}
				if gains[i][d] < minGain {
					gains[i][d] = minGain
				}

				velocity[i][d] = cfg.Momentum*velocity[i][d] - cfg.LearningRate*gains[i][d]*grad[i][d]
				coords[i][d] += velocity[i][d]
			}
		}

		if cfg.Recenter {
			recenter(coords, dim)
		}

		if callbacksDue {
			cancelled := false
			for _, cb := range cfg.Callbacks {
				if !cb(cfg.IterOffset+iter+1, kl, coords) {
					cancelled = true
				}
			}
			// Cancellation takes effect at the iteration boundary: the
			// update above has fully completed.
			if cancelled {
				return kl, nil
			}
		}
	}

	return kl, nil
}

func recenter(coords [][]float64, dim int) {
	n := float64(len(coords))
	mean := make([]float64, dim)
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			mean[d] += y[d]
		}
	}
	for d := 0; d < dim; d++ {
		mean[d] /= n
	}
	for _, y := range coords {
		for d := 0; d < dim; d++ {
			y[d] -= mean[d]
		}
	}
}
