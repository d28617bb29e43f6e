// Package intelligence wraps the external media providers: speech-to-text,
// text/image embedding and image captioning.
package intelligence

import (
	"context"
	"fmt"
)

// ProviderError is a per-unit provider failure. Retriable errors leave the
// unit's persisted status untouched so the next advance call retries it;
// non-retriable ones are reported but never escalate to video-level failure.
type ProviderError struct {
	Provider  string
	Retriable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (retriable=%t): %v", e.Provider, e.Retriable, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MediaIntelligence is the capability surface the pipeline consumes. All
// calls block until the provider answers or ctx expires; a timeout surfaces
// as a retriable ProviderError.
type MediaIntelligence interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	Caption(ctx context.Context, image []byte) (string, error)
}
