package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info describes the decoded shape of a video file.
type Info struct {
	DurationMs int64
	FrameCount int
	FPS        float64
}

// Prober reads stream metadata from a local video file.
type Prober interface {
	Probe(ctx context.Context, videoPath string) (*Info, error)
}

type ffprobe struct{}

func NewProber() Prober {
	return &ffprobe{}
}

type ffprobeOutput struct {
	Streams []struct {
		NbReadPackets string `json:"nb_read_packets"`
		RFrameRate    string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (f *ffprobe) Probe(ctx context.Context, videoPath string) (*Info, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets,r_frame_rate",
		"-show_entries", "format=duration",
		"-print_format", "json",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return nil, fmt.Errorf("ffprobe output parse failed: %w", err)
	}
	if len(probed.Streams) == 0 {
		return nil, fmt.Errorf("no video stream in %s", videoPath)
	}

	durationSec, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("ffprobe duration parse failed: %w", err)
	}

	frameCount, err := strconv.Atoi(probed.Streams[0].NbReadPackets)
	if err != nil {
		return nil, fmt.Errorf("ffprobe frame count parse failed: %w", err)
	}

	fps, err := parseFrameRate(probed.Streams[0].RFrameRate)
	if err != nil {
		return nil, err
	}

	return &Info{
		DurationMs: int64(durationSec * 1000),
		FrameCount: frameCount,
		FPS:        fps,
	}, nil
}

// parseFrameRate parses ffprobe's rational form, e.g. "30000/1001".
func parseFrameRate(rate string) (float64, error) {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		return strconv.ParseFloat(rate, 64)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe frame rate parse failed: %w", err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("ffprobe frame rate parse failed: %q", rate)
	}
	return n / d, nil
}
