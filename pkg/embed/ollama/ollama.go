package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// OllamaEmbedder produces embeddings from a locally hosted Ollama server.
//
// An OllamaEmbedder should be created using NewOllamaEmbedder.
type OllamaEmbedder struct {
	model      string
	dimension  int
	timeoutMin int

	reqLock *semaphore.Weighted

	client *api.Client
}

// NewOllamaEmbedderParams configures an OllamaEmbedder.
type NewOllamaEmbedderParams struct {
	Model     string
	Dimension int

	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
	TimeoutMinutes        int
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaEmbedder creates a new Ollama-backed embedder connected to the
// server at BaseURL (or the Ollama default when empty).
func NewOllamaEmbedder(params NewOllamaEmbedderParams) (*OllamaEmbedder, error) {
	if params.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if params.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeoutMin := params.TimeoutMinutes
	if timeoutMin <= 0 {
		timeoutMin = 2
	}

	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.APIKey,
			},
			rt: http.DefaultTransport,
		},
	}

	return &OllamaEmbedder{
		model:      params.Model,
		dimension:  params.Dimension,
		timeoutMin: timeoutMin,
		reqLock:    semaphore.NewWeighted(maxConcurrent),
		client:     api.NewClient(u, httpClient),
	}, nil
}

// Dimension returns the fixed output vector size.
func (c *OllamaEmbedder) Dimension() int {
	return c.dimension
}

// Embed creates a vector embedding for the given input. Empty input yields
// a zero vector without a round trip; model output is truncated or
// zero-padded to the configured dimension.
func (c *OllamaEmbedder) Embed(ctx context.Context, input []byte) ([]float32, error) {
	if strings.TrimSpace(string(input)) == "" {
		return make([]float32, c.dimension), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.client.Embed(rCtx, &api.EmbedRequest{
		Model: c.model,
		Input: string(input),
	})
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, c.dimension)
	for _, v := range res.Embeddings {
		for _, val := range v {
			if len(out) >= c.dimension {
				break
			}
			out = append(out, float32(val))
		}
	}
	if len(out) < c.dimension {
		padded := make([]float32, c.dimension)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
