package tsne

import (
	"fmt"
	"math"

	"github.com/nozzle/tsne/affinity"
	"github.com/nozzle/tsne/gradient"
	tsneinit "github.com/nozzle/tsne/init"
	"github.com/nozzle/tsne/layout"
	"github.com/nozzle/tsne/nn"
)

// Embedding holds the low-dimensional coordinates of a dataset together
// with the optimizer state needed to continue refining them. Embeddings
// come out of TSNE.PrepareInitial, TSNE.PrepareWithAffinities,
// Embedding.PreparePartial or Embedding.Transform and are advanced with
// Optimize.
type Embedding struct {
	// Coords are the embedding coordinates, one row per point.
	Coords [][]float64
	// KLDivergence is the objective value after the last completed
	// optimization; NaN before any optimization has run.
	KLDivergence float64

	model      *TSNE
	affinities *affinity.CSR
	data       [][]float64
	base       *Embedding
	gains      [][]float64
	velocity   [][]float64
	iters      int
}

func newEmbedding(t *TSNE, coords [][]float64, p *affinity.CSR, data [][]float64) *Embedding {
	e := &Embedding{
		Coords:       coords,
		KLDivergence: math.NaN(),
		model:        t,
		affinities:   p,
		data:         data,
	}
	e.resetMomentum()
	return e
}

func (e *Embedding) resetMomentum() {
	n := len(e.Coords)
	dim := 0
	if n > 0 {
		dim = len(e.Coords[0])
	}
	e.gains = make([][]float64, n)
	e.velocity = make([][]float64, n)
	for i := 0; i < n; i++ {
		e.gains[i] = make([]float64, dim)
		e.velocity[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			e.gains[i][d] = 1
		}
	}
}

// OptimizeParams configures a single call to Optimize.
type OptimizeParams struct {
	// NIter is the number of iterations to run.
	NIter int
	// Exaggeration multiplies the attractive term for the whole run.
	// Zero or one means no exaggeration; the affinities themselves are
	// never modified, so successive runs with different factors compose
	// exactly.
	Exaggeration float64
	// Momentum of the velocity update. 0 uses the model's FinalMomentum.
	Momentum float64
	// LearningRate overrides the model's learning rate when positive.
	LearningRate float64
	// NegativeGradientMethod overrides the model's backend for this run
	// ("bh", "fft", "exact" or "auto"). Empty uses the model setting.
	NegativeGradientMethod string
	// Theta overrides the Barnes-Hut opening angle when positive.
	Theta float64
	// Inplace mutates the receiver instead of optimizing a copy.
	Inplace bool
	// ResetMomentum clears the velocity and gain buffers before the
	// run. Useful when switching backends or after a large change in
	// exaggeration; otherwise the buffers carry over so consecutive
	// runs behave like one longer run.
	ResetMomentum bool
	// Callbacks override the model's callbacks when non-nil.
	Callbacks []Callback
	// CallbacksEveryIters overrides the model's cadence when positive.
	CallbacksEveryIters int
	// NumWorkers overrides the model's worker count when positive.
	NumWorkers int
}

// Optimize runs n iterations of gradient descent and returns the
// optimized embedding. With Inplace the receiver itself is advanced and
// returned; otherwise the receiver is left untouched and a deep copy is
// optimized, so the two calls differ only in which object carries the
// result. Iteration numbers reported to callbacks continue from the
// receiver's previous runs.
func (e *Embedding) Optimize(p OptimizeParams) (*Embedding, error) {
	target := e
	if !p.Inplace {
		target = e.clone()
	}
	if p.ResetMomentum {
		target.resetMomentum()
	}
	if p.NIter == 0 {
		return target, nil
	}

	cfg := e.model.Config

	method := p.NegativeGradientMethod
	if method == "" {
		method = cfg.NegativeGradientMethod
	}
	resolved, err := e.model.resolveMethod(method, len(target.Coords))
	if err != nil {
		return nil, err
	}

	theta := cfg.Theta
	if p.Theta > 0 {
		theta = p.Theta
	}
	learningRate := cfg.LearningRate
	if p.LearningRate > 0 {
		learningRate = p.LearningRate
	}
	momentum := p.Momentum
	if momentum == 0 {
		momentum = cfg.FinalMomentum
	}
	callbacks := cfg.Callbacks
	if p.Callbacks != nil {
		callbacks = p.Callbacks
	}
	cadence := cfg.CallbacksEveryIters
	if p.CallbacksEveryIters > 0 {
		cadence = p.CallbacksEveryIters
	}
	numWorkers := cfg.NumWorkers
	if p.NumWorkers > 0 {
		numWorkers = p.NumWorkers
	}

	gcfg := e.model.gridConfig()
	gcfg.NumWorkers = numWorkers

	var ref [][]float64
	if target.base != nil {
		ref = target.base.Coords
	}

	params := layout.Params{
		NIter:        p.NIter,
		Exaggeration: p.Exaggeration,
		Momentum:     momentum,
		LearningRate: learningRate,
		Gradient: gradient.Options{
			Method:     resolved,
			Theta:      theta,
			Grid:       gcfg,
			NumWorkers: numWorkers,
		},
		Callbacks:           callbacks,
		CallbacksEveryIters: cadence,
		Recenter:            target.base == nil,
		IterOffset:          target.iters,
	}

	kl, err := layout.GradientDescent(target.Coords, ref, target.gains, target.velocity, target.affinities, params)
	if err != nil {
		return nil, err
	}
	target.KLDivergence = kl
	target.iters += p.NIter
	return target, nil
}

// clone deep-copies the embedding and its optimizer state. The base of
// a partial embedding is shared, not copied; it is read-only during
// optimization.
func (e *Embedding) clone() *Embedding {
	c := &Embedding{
		KLDivergence: e.KLDivergence,
		model:        e.model,
		affinities:   e.affinities,
		data:         e.data,
		base:         e.base,
		iters:        e.iters,
	}
	c.Coords = copyMatrix(e.Coords)
	c.gains = copyMatrix(e.gains)
	c.velocity = copyMatrix(e.velocity)
	return c
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// PreparePartial places new points into the space of an existing
// embedding without moving it. Affinities run from the new points to
// the training data only, and each point starts at the affinity-weighted
// mean of its neighbors' embedded positions. The returned embedding
// optimizes against the fixed base; call Optimize (or use Transform for
// the standard schedule) to refine it.
func (e *Embedding) PreparePartial(data [][]float64) (*Embedding, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if e.data == nil {
		return nil, ErrNoTrainingData
	}
	if len(data[0]) != len(e.data[0]) {
		return nil, fmt.Errorf("%w: query has %d features, training data has %d",
			ErrPointCountMismatch, len(data[0]), len(e.data[0]))
	}

	cfg := e.model.Config
	perplexity := clampPerplexity(cfg.Perplexity, len(e.data)+1)

	k := int(3 * perplexity)
	if k > len(e.data) {
		k = len(e.data)
	}
	knn := nn.BruteForceQuery(data, e.data, k, cfg.NumWorkers)

	acfg := affinity.Config{Perplexity: perplexity, NumWorkers: cfg.NumWorkers}
	p := affinity.PerplexityBasedPartial(knn.Indices, knn.Distances, len(e.data), acfg)

	coords := tsneinit.WeightedMean(p, e.Coords)

	partial := newEmbedding(e.model, coords, p, data)
	partial.base = e
	return partial, nil
}

// Transform embeds new points into the space of an existing embedding:
// PreparePartial followed by a short two-phase optimization, an
// exaggerated warmup and a refinement phase, both against the fixed
// base.
func (e *Embedding) Transform(data [][]float64) (*Embedding, error) {
	partial, err := e.PreparePartial(data)
	if err != nil {
		return nil, err
	}

	partial, err = partial.Optimize(OptimizeParams{
		NIter:        25,
		Exaggeration: 4,
		Momentum:     0.5,
		Inplace:      true,
	})
	if err != nil {
		return nil, err
	}

	return partial.Optimize(OptimizeParams{
		NIter:    75,
		Momentum: 0.8,
		Inplace:  true,
	})
}
