package constant

type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "UPLOADED"
	VideoStatusProcessing VideoStatus = "PROCESSING"
	VideoStatusCompleted  VideoStatus = "COMPLETED"
	VideoStatusFailed     VideoStatus = "FAILED"
)

type AudioChunkStatus string

const (
	AudioChunkStatusPendingTranscription AudioChunkStatus = "PENDING_TRANSCRIPTION"
	AudioChunkStatusPendingEmbedding     AudioChunkStatus = "PENDING_EMBEDDING"
	AudioChunkStatusComplete             AudioChunkStatus = "COMPLETE"
)

type FrameStatus string

const (
	FrameStatusPendingImageEmbedding   FrameStatus = "PENDING_IMAGE_EMBEDDING"
	FrameStatusPendingCaption          FrameStatus = "PENDING_CAPTION"
	FrameStatusPendingCaptionEmbedding FrameStatus = "PENDING_CAPTION_EMBEDDING"
	FrameStatusComplete                FrameStatus = "COMPLETE"
)

// Stage is one discrete phase of the ingestion pipeline. Exactly one stage is
// resolved from persisted state on every advance call.
type Stage string

const (
	StageFetchAndSplit    Stage = "FETCH_AND_SPLIT"
	StageTranscribeAudio  Stage = "TRANSCRIBE_AUDIO"
	StageEmbedTranscripts Stage = "EMBED_TRANSCRIPTS"
	StageEmbedFrames      Stage = "EMBED_FRAMES"
	StageCaptionFrames    Stage = "CAPTION_FRAMES"
	StageEmbedCaptions    Stage = "EMBED_CAPTIONS"
	StageFinalize         Stage = "FINALIZE"
	StageNone             Stage = "NONE"
)

func (s Stage) String() string {
	return string(s)
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
