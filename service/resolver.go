package service

import (
	"worker-ingest/constant"
	"worker-ingest/entities"
)

// stageRule pairs a stage with its admission condition. The rules form a
// fixed total ordering: for any reachable record state exactly one rule
// matches first, which is what makes re-invocation after a crash safe. The
// resolver always lands on the earliest incomplete stage, never skips ahead
// and never repeats a completed one. New stages are rows here, not branches.
type stageRule struct {
	stage constant.Stage
	match func(video *entities.Video, audio map[constant.AudioChunkStatus]int64, frames map[constant.FrameStatus]int64) bool
}

var stageRules = []stageRule{
	{
		stage: constant.StageFetchAndSplit,
		match: func(v *entities.Video, _ map[constant.AudioChunkStatus]int64, _ map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusUploaded || v.Status == constant.VideoStatusFailed
		},
	},
	{
		stage: constant.StageTranscribeAudio,
		match: func(v *entities.Video, audio map[constant.AudioChunkStatus]int64, _ map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing && audio[constant.AudioChunkStatusPendingTranscription] > 0
		},
	},
	{
		stage: constant.StageEmbedTranscripts,
		match: func(v *entities.Video, audio map[constant.AudioChunkStatus]int64, _ map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing && audio[constant.AudioChunkStatusPendingEmbedding] > 0
		},
	},
	{
		stage: constant.StageEmbedFrames,
		match: func(v *entities.Video, _ map[constant.AudioChunkStatus]int64, frames map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing && frames[constant.FrameStatusPendingImageEmbedding] > 0
		},
	},
	{
		stage: constant.StageCaptionFrames,
		match: func(v *entities.Video, _ map[constant.AudioChunkStatus]int64, frames map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing && frames[constant.FrameStatusPendingCaption] > 0
		},
	},
	{
		stage: constant.StageEmbedCaptions,
		match: func(v *entities.Video, _ map[constant.AudioChunkStatus]int64, frames map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing && frames[constant.FrameStatusPendingCaptionEmbedding] > 0
		},
	},
	{
		stage: constant.StageFinalize,
		match: func(v *entities.Video, _ map[constant.AudioChunkStatus]int64, _ map[constant.FrameStatus]int64) bool {
			return v.Status == constant.VideoStatusProcessing
		},
	},
}

// ResolveStage derives the single next stage to run purely from persisted
// state. It is idempotent: the same record and child counts always resolve to
// the same stage, and a COMPLETED video resolves to NONE forever.
func ResolveStage(video *entities.Video, audio map[constant.AudioChunkStatus]int64, frames map[constant.FrameStatus]int64) constant.Stage {
	for _, rule := range stageRules {
		if rule.match(video, audio, frames) {
			return rule.stage
		}
	}
	return constant.StageNone
}
