package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// groqTranscriber calls the Groq OpenAI-compatible audio transcription
// endpoint with a multipart upload.
type groqTranscriber struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func newGroqTranscriber(baseURL, apiKey, model string) *groqTranscriber {
	return &groqTranscriber{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (g *groqTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "chunk."+format)
	if err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: err}
	}
	if err := writer.WriteField("model", g.model); err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: err}
	}

	url := g.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{
			Provider:  "groq",
			Retriable: retriableStatus(resp.StatusCode),
			Err:       fmt.Errorf("transcription returned %d: %s", resp.StatusCode, payload),
		}
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Provider: "groq", Retriable: true, Err: err}
	}
	if parsed.Text == "" {
		return "", &ProviderError{Provider: "groq", Retriable: false, Err: errors.New("empty transcription")}
	}

	return parsed.Text, nil
}

// retriableStatus treats rate limits and server-side failures as transient.
func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
