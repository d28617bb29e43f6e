package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Extractor cuts audio segments and single frames out of a local video file.
// Outputs are byte payloads ready for the media providers: 16kHz mono WAV for
// transcription, JPEG for embedding and captioning.
type Extractor interface {
	ExtractAudioSegment(ctx context.Context, videoPath string, startSec, endSec float64) ([]byte, error)
	ExtractFrame(ctx context.Context, videoPath string, timestampSec float64) ([]byte, error)
}

type ffmpegExtractor struct{}

func NewExtractor() Extractor {
	return &ffmpegExtractor{}
}

func (f *ffmpegExtractor) ExtractAudioSegment(ctx context.Context, videoPath string, startSec, endSec float64) ([]byte, error) {
	args := []string{
		"-ss", formatSeconds(startSec),
		"-to", formatSeconds(endSec),
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-f", "wav",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}
	return output, nil
}

func (f *ffmpegExtractor) ExtractFrame(ctx context.Context, videoPath string, timestampSec float64) ([]byte, error) {
	args := []string{
		"-ss", formatSeconds(timestampSec),
		"-i", videoPath,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2pipe",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %s", formatSeconds(timestampSec))
	}
	return output, nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
