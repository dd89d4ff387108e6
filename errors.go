package tsne

import "errors"

var (
	// ErrEmptyInput indicates the input data has no points.
	ErrEmptyInput = errors.New("tsne: input data must contain at least one point")
	// ErrUnrecognizedMethod indicates an unknown negative-gradient method name.
	ErrUnrecognizedMethod = errors.New("tsne: unrecognized negative gradient method")
	// ErrUnrecognizedInitialization indicates an unknown initialization name.
	ErrUnrecognizedInitialization = errors.New("tsne: unrecognized initialization method")
	// ErrInvalidDimension indicates an embedding dimensionality other than 2 or 3.
	ErrInvalidDimension = errors.New("tsne: embedding dimensionality must be 2 or 3")
	// ErrMethodDimension indicates the chosen backend does not support the embedding dimensionality.
	ErrMethodDimension = errors.New("tsne: fft gradient method supports 2D embeddings only")
	// ErrPointCountMismatch indicates the affinity matrix shape does not match the coordinates.
	ErrPointCountMismatch = errors.New("tsne: affinity matrix shape does not match point count")
	// ErrNoTrainingData indicates the embedding was built from precomputed
	// affinities and cannot place new points.
	ErrNoTrainingData = errors.New("tsne: embedding has no training data to transform against")
)
