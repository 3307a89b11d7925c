package embed

import "context"

// Embedder maps content to a fixed-size vector. Implementations are black
// boxes: the pipeline only relies on the output dimension being stable for
// a given embedder.
type Embedder interface {
	Embed(ctx context.Context, input []byte) ([]float32, error)
	Dimension() int
}

// BatchEmbedder is an optional fast path for embedders that support
// multi-input requests.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// EmbedAll embeds every input, using the batch fast path when the embedder
// provides one.
func EmbedAll(ctx context.Context, e Embedder, inputs [][]byte) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if b, ok := e.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		v, err := e.Embed(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
