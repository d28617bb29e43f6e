package intelligence

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// clipEmbedder talks to a CLIP embedding server exposing the
// OpenAI-compatible /embeddings endpoint with base64 image input. The image
// vector space is distinct from the text one (512 vs 1536 dimensions).
type clipEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
}

func newCLIPEmbedder(baseURL, model string, dimension int) *clipEmbedder {
	return &clipEmbedder{
		httpClient: &http.Client{Timeout: time.Minute},
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *clipEmbedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model: c.model,
		Input: []string{base64.StdEncoding.EncodeToString(image)},
	})
	if err != nil {
		return nil, &ProviderError{Provider: "clip", Retriable: false, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: "clip", Retriable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "clip", Retriable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			Provider:  "clip",
			Retriable: retriableStatus(resp.StatusCode),
			Err:       fmt.Errorf("image embedding returned %d: %s", resp.StatusCode, body),
		}
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Provider: "clip", Retriable: true, Err: err}
	}
	if len(parsed.Data) == 0 {
		return nil, &ProviderError{Provider: "clip", Retriable: false, Err: fmt.Errorf("no embedding in response")}
	}

	vec := parsed.Data[0].Embedding
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, &ProviderError{
			Provider:  "clip",
			Retriable: false,
			Err:       fmt.Errorf("embedding dimension %d, expected %d", len(vec), c.dimension),
		}
	}

	return vec, nil
}
