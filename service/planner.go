package service

import (
	"errors"
)

// ErrBadChunkConfig is a configuration error: the overlap swallows the whole
// chunk, so the sliding window would never advance.
var ErrBadChunkConfig = errors.New("chunk length must exceed overlap")

// AudioChunkPlan is one bounded slice of the audio track.
type AudioChunkPlan struct {
	StartMs int64
	EndMs   int64
	Index   int
}

// PlanAudioChunks produces the ordered chunk plan for a track of
// totalDurationMs: a sliding window of chunkLengthMs advancing by
// chunkLengthMs - overlapSeconds*1000, with the final window clipped to the
// track end. The plan is deterministic for fixed inputs; re-running after a
// crash yields byte-identical boundaries, so chunk indices can never
// misalign with already-persisted records.
func PlanAudioChunks(totalDurationMs, chunkLengthMs int64, overlapSeconds int) ([]AudioChunkPlan, error) {
	step := chunkLengthMs - int64(overlapSeconds)*1000
	if step <= 0 {
		return nil, ErrBadChunkConfig
	}
	if totalDurationMs <= 0 {
		return nil, nil
	}

	var chunks []AudioChunkPlan
	for start := int64(0); start < totalDurationMs; start += step {
		end := start + chunkLengthMs
		if end > totalDurationMs {
			end = totalDurationMs
		}
		chunks = append(chunks, AudioChunkPlan{
			StartMs: start,
			EndMs:   end,
			Index:   len(chunks),
		})
	}

	return chunks, nil
}

// PlanFrameSamples picks sampleCount frame indices uniformly spaced across
// [0, totalFrameCount-1] inclusive, deduplicated and ascending. Asking for at
// least as many samples as frames returns every frame index once.
func PlanFrameSamples(totalFrameCount, sampleCount int) []int {
	if totalFrameCount <= 0 || sampleCount <= 0 {
		return nil
	}
	if sampleCount >= totalFrameCount {
		indices := make([]int, totalFrameCount)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	if sampleCount == 1 {
		return []int{0}
	}

	indices := make([]int, 0, sampleCount)
	last := -1
	span := float64(totalFrameCount - 1)
	for i := 0; i < sampleCount; i++ {
		idx := int(float64(i) * span / float64(sampleCount-1))
		if idx != last {
			indices = append(indices, idx)
			last = idx
		}
	}

	return indices
}
