package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// OpenAIEmbedder produces embeddings from an OpenAI-compatible endpoint.
// Requests are bounded by an internal semaphore so callers can fan out
// freely.
//
// An OpenAIEmbedder should be created using NewOpenAIEmbedder.
type OpenAIEmbedder struct {
	model      string
	dimension  int
	timeoutMin int

	reqLock *semaphore.Weighted

	client *openai.Client
}

// NewOpenAIEmbedderParams configures an OpenAIEmbedder.
//
// Model and Dimension must match the embedding model deployed at BaseURL;
// the embedder truncates or zero-pads responses to Dimension to keep
// downstream vector storage consistent.
type NewOpenAIEmbedderParams struct {
	Model     string
	Dimension int

	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
	TimeoutMinutes        int
}

// NewOpenAIEmbedder creates a new OpenAI-backed embedder.
func NewOpenAIEmbedder(params NewOpenAIEmbedderParams) (*OpenAIEmbedder, error) {
	if params.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if params.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	timeoutMin := params.TimeoutMinutes
	if timeoutMin <= 0 {
		timeoutMin = 2
	}

	opts := []option.RequestOption{option.WithAPIKey(params.APIKey)}
	if params.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIEmbedder{
		model:      params.Model,
		dimension:  params.Dimension,
		timeoutMin: timeoutMin,
		reqLock:    semaphore.NewWeighted(maxConcurrent),
		client:     &client,
	}, nil
}

// Dimension returns the fixed output vector size.
func (c *OpenAIEmbedder) Dimension() int {
	return c.dimension
}

// Embed creates a vector embedding for a single input.
func (c *OpenAIEmbedder) Embed(ctx context.Context, input []byte) ([]float32, error) {
	res, err := c.EmbedBatch(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("unexpected embedding result size: got %d want 1", len(res))
	}
	return res[0], nil
}

// EmbedBatch creates embeddings for multiple inputs in a single request.
// Empty or whitespace-only inputs yield zero vectors without a round trip.
func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(inputs))
	idxMap := make([]int, 0, len(inputs))
	stringsIn := make([]string, 0, len(inputs))
	for i, input := range inputs {
		s := string(input)
		if strings.TrimSpace(s) == "" {
			out[i] = make([]float32, c.dimension)
			continue
		}
		idxMap = append(idxMap, i)
		stringsIn = append(stringsIn, s)
	}
	if len(stringsIn) == 0 {
		return out, nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	response, err := c.client.Embeddings.New(rCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: stringsIn},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(response.Data) != len(stringsIn) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(stringsIn))
	}

	for _, embedding := range response.Data {
		dataIdx := int(embedding.Index)
		if dataIdx < 0 || dataIdx >= len(stringsIn) {
			return nil, fmt.Errorf("embedding index out of range: %d", embedding.Index)
		}
		vec := make([]float32, 0, c.dimension)
		for _, v := range embedding.Embedding {
			if len(vec) >= c.dimension {
				break
			}
			vec = append(vec, float32(v))
		}
		if len(vec) < c.dimension {
			padded := make([]float32, c.dimension)
			copy(padded, vec)
			vec = padded
		}
		out[idxMap[dataIdx]] = vec
	}

	return out, nil
}
