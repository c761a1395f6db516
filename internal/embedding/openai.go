package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"docquery/internal/version"
)

var _ Embedder = (*OpenAIEmbedder)(nil)

const (
	defaultOpenAIModel = "text-embedding-3-small"
	defaultDimensions  = 1536
	openAIEmbedURL     = "https://api.openai.com/v1/embeddings"
	maxRetries         = 3
	openAIMaxBatch     = 256
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint, or any server that
// speaks the same protocol.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	baseURL    string
	backoff    func(attempt int) time.Duration
}

// NewOpenAIEmbedder creates an embedder for model with dims output
// dimensions. Empty or zero values select text-embedding-3-small at 1536.
func NewOpenAIEmbedder(apiKey, model string, dims int) *OpenAIEmbedder {
	if model == "" {
		model = defaultOpenAIModel
	}
	if dims <= 0 {
		dims = defaultDimensions
	}
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: dims,
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    openAIEmbedURL,
		backoff: func(attempt int) time.Duration {
			return time.Second << (attempt - 1)
		},
	}
}

func (o *OpenAIEmbedder) Name() string    { return "openai:" + o.model }
func (o *OpenAIEmbedder) Dimensions() int { return o.dimensions }

// Embed returns one vector per input, in input order. Inputs are sent in
// batches of at most 256.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatch {
		end := min(start+openAIMaxBatch, len(texts))
		batch, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// apiError is a non-200 answer from the embeddings endpoint.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	if e.status == http.StatusTooManyRequests {
		return "openai embed: rate limited (429)"
	}
	return fmt.Sprintf("openai embed: API error %d: %s", e.status, e.body)
}

// retryable reports whether err is worth another attempt: transport errors,
// 429 and 5xx.
func retryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}

func (o *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{
		Model:      o.model,
		Input:      texts,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: marshal request: %w", err)
	}

	var resp *openAIEmbedResponse
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.backoff(attempt)):
			}
		}

		resp, err = o.post(ctx, body)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == maxRetries || !retryable(err) {
			return nil, err
		}
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// post performs a single request.
func (o *OpenAIEmbedder) post(ctx context.Context, body []byte) (*openAIEmbedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())

	httpResp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai embed: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &apiError{status: httpResp.StatusCode, body: string(respBody)}
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("openai embed: unmarshal response: %w", err)
	}
	return &out, nil
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedData `json:"data"`
}

type openAIEmbedData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}
