package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"worker-ingest/config"
	"worker-ingest/constant"
	"worker-ingest/dto"
	"worker-ingest/entities"
	"worker-ingest/intelligence"
	"worker-ingest/media"
	"worker-ingest/metrics"
	"worker-ingest/pkg/fanout"
	"worker-ingest/repository"
	"worker-ingest/storage"
)

// ErrPersistence marks a metadata write failure. These always abort the
// current advance call; an inconsistent metadata write would corrupt
// resumability.
var ErrPersistence = errors.New("persistence error")

// Service drives a video through the ingestion pipeline. Advance executes
// exactly one stage per call; callers re-invoke it until the report carries
// StageNone. Concurrent Advance calls for the same video must be serialized
// by the caller.
type Service interface {
	Register(ctx context.Context, objectPath, filename string) (*entities.Video, error)
	Advance(ctx context.Context, videoId uuid.UUID) (*dto.AdvanceReport, error)
	Delete(ctx context.Context, videoId uuid.UUID) error
}

type service struct {
	repo      repository.VideoRepository
	blobs     storage.BlobStore
	prober    media.Prober
	extractor media.Extractor
	intel     intelligence.MediaIntelligence
	cfg       *config.Config
}

func NewService(
	repo repository.VideoRepository,
	blobs storage.BlobStore,
	prober media.Prober,
	extractor media.Extractor,
	intel intelligence.MediaIntelligence,
	cfg *config.Config,
) Service {
	return &service{
		repo:      repo,
		blobs:     blobs,
		prober:    prober,
		extractor: extractor,
		intel:     intel,
		cfg:       cfg,
	}
}

// Register creates a video record for a source object path, or returns the
// existing record when the path was seen before. Re-ingesting the same
// locator never duplicates a record.
func (s *service) Register(ctx context.Context, objectPath, filename string) (*entities.Video, error) {
	existing, err := s.repo.FindVideoBySourcePath(ctx, objectPath)
	if err == nil {
		zerolog.Ctx(ctx).Info().Str("video_id", existing.ID.String()).Str("object_path", objectPath).Msg("video already registered")
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Join(ErrPersistence, err)
	}

	video := &entities.Video{
		ID:         uuid.New(),
		Filename:   filename,
		Bucket:     s.cfg.MinIOBucket,
		SourcePath: objectPath,
		Status:     constant.VideoStatusUploaded,
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}

	zerolog.Ctx(ctx).Info().Str("video_id", video.ID.String()).Str("object_path", objectPath).Msg("video registered")
	return video, nil
}

func (s *service) Delete(ctx context.Context, videoId uuid.UUID) error {
	if err := s.repo.DeleteVideo(ctx, videoId); err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

// Advance loads the record, resolves the next stage from persisted status and
// runs that one stage to completion. Per-unit provider failures never error
// the call; they are reported so the caller can decide on backoff.
func (s *service) Advance(ctx context.Context, videoId uuid.UUID) (*dto.AdvanceReport, error) {
	video, err := s.repo.FindVideoById(ctx, videoId)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}

	audioCounts, err := s.repo.CountAudioChunksByStatus(ctx, videoId)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	frameCounts, err := s.repo.CountFramesByStatus(ctx, videoId)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}

	stage := ResolveStage(video, audioCounts, frameCounts)
	report := &dto.AdvanceReport{
		VideoId: video.ID,
		Stage:   stage,
	}
	if stage == constant.StageNone {
		return report, nil
	}

	zerolog.Ctx(ctx).Info().Str("video_id", video.ID.String()).Str("stage", stage.String()).Msg("advancing stage")
	metrics.StageRuns.WithLabelValues(stage.String()).Inc()
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(stage.String()))
	defer timer.ObserveDuration()

	switch stage {
	case constant.StageFetchAndSplit:
		err = s.fetchAndSplit(ctx, video, report)
	case constant.StageTranscribeAudio:
		err = s.transcribeAudio(ctx, video, report)
	case constant.StageEmbedTranscripts:
		err = s.embedTranscripts(ctx, video, report)
	case constant.StageEmbedFrames:
		err = s.embedFrames(ctx, video, report)
	case constant.StageCaptionFrames:
		err = s.captionFrames(ctx, video, report)
	case constant.StageEmbedCaptions:
		err = s.embedCaptions(ctx, video, report)
	case constant.StageFinalize:
		err = s.finalize(ctx, video)
	}
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("video_id", video.ID.String()).
		Str("stage", stage.String()).
		Int("units", report.Units).
		Int("failed", report.Failed).
		Msg("stage finished")

	return report, nil
}

// fetchAndSplit pulls the source from the blob store, probes it and persists
// the full child-record plan in one transaction together with the PROCESSING
// transition. Entering from FAILED replans from scratch: existing children
// are cleared in the same transaction, and the deterministic planner
// guarantees the re-created records line up with any earlier run.
func (s *service) fetchAndSplit(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	report.Units = 1

	info, err := s.blobs.Stat(ctx, video.SourcePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Str("video_id", video.ID.String()).Msg("source object missing, marking video failed")
			report.Failed = 1
			return s.markFailed(ctx, video.ID)
		}
		return err
	}

	localPath, cleanup, err := s.fetchSource(ctx, video)
	if err != nil {
		return err
	}
	defer cleanup()

	probed, err := s.prober.Probe(ctx, localPath)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("video_id", video.ID.String()).Msg("unreadable source, marking video failed")
		report.Failed = 1
		return s.markFailed(ctx, video.ID)
	}

	plans, err := PlanAudioChunks(probed.DurationMs, int64(s.cfg.Pipeline.ChunkLengthSeconds)*1000, s.cfg.Pipeline.OverlapSeconds)
	if err != nil {
		return err
	}
	frameIndices := PlanFrameSamples(probed.FrameCount, s.cfg.Pipeline.FrameSampleCount)

	chunks := make([]*entities.AudioChunk, 0, len(plans))
	for _, plan := range plans {
		chunks = append(chunks, &entities.AudioChunk{
			ID:         uuid.New(),
			VideoId:    video.ID,
			ChunkIndex: plan.Index,
			StartTime:  float64(plan.StartMs) / 1000,
			EndTime:    float64(plan.EndMs) / 1000,
			Status:     constant.AudioChunkStatusPendingTranscription,
		})
	}

	frames := make([]*entities.Frame, 0, len(frameIndices))
	for _, idx := range frameIndices {
		var ts float64
		if probed.FPS > 0 {
			ts = float64(idx) / probed.FPS
		}
		frames = append(frames, &entities.Frame{
			ID:               uuid.New(),
			VideoId:          video.ID,
			FrameIndex:       idx,
			TimestampSeconds: ts,
			Status:           constant.FrameStatusPendingImageEmbedding,
		})
	}

	now := time.Now().UTC()
	err = s.repo.Transaction(ctx, func(ctx context.Context, tx repository.VideoRepository) error {
		if err := tx.DeleteAudioChunksByVideoId(ctx, video.ID); err != nil {
			return err
		}
		if err := tx.DeleteFramesByVideoId(ctx, video.ID); err != nil {
			return err
		}
		if err := tx.BulkCreateAudioChunks(ctx, chunks); err != nil {
			return err
		}
		if err := tx.BulkCreateFrames(ctx, frames); err != nil {
			return err
		}
		return tx.UpdateVideo(ctx, video.ID, map[string]interface{}{
			"status":                  constant.VideoStatusProcessing,
			"mime_type":               info.MimeType,
			"file_size_bytes":         info.Size,
			"duration_seconds":        float64(probed.DurationMs) / 1000,
			"audio_done":              false,
			"frames_done":             false,
			"processing_started_at":   now,
			"processing_completed_at": nil,
			"updated_at":              now,
		})
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("video_id", video.ID.String()).
		Int("audio_chunks", len(chunks)).
		Int("frames", len(frames)).
		Msg("video split planned and persisted")

	return nil
}

func (s *service) transcribeAudio(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	chunks, err := s.repo.GetAudioChunksByStatus(ctx, video.ID, constant.AudioChunkStatusPendingTranscription)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	report.Units = len(chunks)

	localPath, cleanup, err := s.fetchSource(ctx, video)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes := fanout.Run(ctx, chunks, s.cfg.Pipeline.Concurrency, func(ctx context.Context, chunk *entities.AudioChunk) (struct{}, error) {
		unitCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.ProviderTimeout)
		defer cancel()

		wav, err := s.extractor.ExtractAudioSegment(unitCtx, localPath, chunk.StartTime, chunk.EndTime)
		if err != nil {
			return struct{}{}, err
		}
		text, err := s.intel.Transcribe(unitCtx, wav, "wav")
		if err != nil {
			return struct{}{}, err
		}

		err = s.repo.UpdateAudioChunk(ctx, chunk.ID, map[string]interface{}{
			"transcript_text": text,
			"status":          constant.AudioChunkStatusPendingEmbedding,
			"updated_at":      time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, errors.Join(ErrPersistence, err)
		}
		return struct{}{}, nil
	})

	return s.tally(ctx, constant.StageTranscribeAudio, outcomes, report)
}

func (s *service) embedTranscripts(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	chunks, err := s.repo.GetAudioChunksByStatus(ctx, video.ID, constant.AudioChunkStatusPendingEmbedding)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	report.Units = len(chunks)

	outcomes := fanout.Run(ctx, chunks, s.cfg.Pipeline.Concurrency, func(ctx context.Context, chunk *entities.AudioChunk) (struct{}, error) {
		unitCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.ProviderTimeout)
		defer cancel()

		var text string
		if chunk.TranscriptText != nil {
			text = *chunk.TranscriptText
		}
		vec, err := s.intel.EmbedText(unitCtx, text)
		if err != nil {
			return struct{}{}, err
		}

		embedding := pgvector.NewVector(vec)
		err = s.repo.UpdateAudioChunk(ctx, chunk.ID, map[string]interface{}{
			"transcript_embedding": embedding,
			"status":               constant.AudioChunkStatusComplete,
			"updated_at":           time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, errors.Join(ErrPersistence, err)
		}
		return struct{}{}, nil
	})

	if err := s.tally(ctx, constant.StageEmbedTranscripts, outcomes, report); err != nil {
		return err
	}
	if report.Failed == 0 {
		if err := s.repo.UpdateVideo(ctx, video.ID, map[string]interface{}{
			"audio_done": true,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return errors.Join(ErrPersistence, err)
		}
	}
	return nil
}

func (s *service) embedFrames(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	frames, err := s.repo.GetFramesByStatus(ctx, video.ID, constant.FrameStatusPendingImageEmbedding)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	report.Units = len(frames)

	localPath, cleanup, err := s.fetchSource(ctx, video)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes := fanout.Run(ctx, frames, s.cfg.Pipeline.Concurrency, func(ctx context.Context, frame *entities.Frame) (struct{}, error) {
		unitCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.ProviderTimeout)
		defer cancel()

		image, err := s.extractor.ExtractFrame(unitCtx, localPath, frame.TimestampSeconds)
		if err != nil {
			return struct{}{}, err
		}
		vec, err := s.intel.EmbedImage(unitCtx, image)
		if err != nil {
			return struct{}{}, err
		}

		embedding := pgvector.NewVector(vec)
		err = s.repo.UpdateFrame(ctx, frame.ID, map[string]interface{}{
			"image_embedding": embedding,
			"status":          constant.FrameStatusPendingCaption,
			"updated_at":      time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, errors.Join(ErrPersistence, err)
		}
		return struct{}{}, nil
	})

	return s.tally(ctx, constant.StageEmbedFrames, outcomes, report)
}

func (s *service) captionFrames(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	frames, err := s.repo.GetFramesByStatus(ctx, video.ID, constant.FrameStatusPendingCaption)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	report.Units = len(frames)

	localPath, cleanup, err := s.fetchSource(ctx, video)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes := fanout.Run(ctx, frames, s.cfg.Pipeline.Concurrency, func(ctx context.Context, frame *entities.Frame) (struct{}, error) {
		unitCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.ProviderTimeout)
		defer cancel()

		image, err := s.extractor.ExtractFrame(unitCtx, localPath, frame.TimestampSeconds)
		if err != nil {
			return struct{}{}, err
		}
		caption, err := s.intel.Caption(unitCtx, image)
		if err != nil {
			return struct{}{}, err
		}

		err = s.repo.UpdateFrame(ctx, frame.ID, map[string]interface{}{
			"caption_text": caption,
			"status":       constant.FrameStatusPendingCaptionEmbedding,
			"updated_at":   time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, errors.Join(ErrPersistence, err)
		}
		return struct{}{}, nil
	})

	return s.tally(ctx, constant.StageCaptionFrames, outcomes, report)
}

func (s *service) embedCaptions(ctx context.Context, video *entities.Video, report *dto.AdvanceReport) error {
	frames, err := s.repo.GetFramesByStatus(ctx, video.ID, constant.FrameStatusPendingCaptionEmbedding)
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	report.Units = len(frames)

	outcomes := fanout.Run(ctx, frames, s.cfg.Pipeline.Concurrency, func(ctx context.Context, frame *entities.Frame) (struct{}, error) {
		unitCtx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.ProviderTimeout)
		defer cancel()

		var caption string
		if frame.CaptionText != nil {
			caption = *frame.CaptionText
		}
		vec, err := s.intel.EmbedText(unitCtx, caption)
		if err != nil {
			return struct{}{}, err
		}

		embedding := pgvector.NewVector(vec)
		err = s.repo.UpdateFrame(ctx, frame.ID, map[string]interface{}{
			"caption_embedding": embedding,
			"status":            constant.FrameStatusComplete,
			"updated_at":        time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, errors.Join(ErrPersistence, err)
		}
		return struct{}{}, nil
	})

	if err := s.tally(ctx, constant.StageEmbedCaptions, outcomes, report); err != nil {
		return err
	}
	if report.Failed == 0 {
		if err := s.repo.UpdateVideo(ctx, video.ID, map[string]interface{}{
			"frames_done": true,
			"updated_at":  time.Now().UTC(),
		}); err != nil {
			return errors.Join(ErrPersistence, err)
		}
	}
	return nil
}

func (s *service) finalize(ctx context.Context, video *entities.Video) error {
	now := time.Now().UTC()
	err := s.repo.UpdateVideo(ctx, video.ID, map[string]interface{}{
		"status":                  constant.VideoStatusCompleted,
		"audio_done":              true,
		"frames_done":             true,
		"processing_completed_at": now,
		"updated_at":              now,
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}

	zerolog.Ctx(ctx).Info().Str("video_id", video.ID.String()).Msg("video ingestion completed")
	return nil
}

func (s *service) markFailed(ctx context.Context, videoId uuid.UUID) error {
	now := time.Now().UTC()
	err := s.repo.UpdateVideo(ctx, videoId, map[string]interface{}{
		"status":                  constant.VideoStatusFailed,
		"processing_completed_at": now,
		"updated_at":              now,
	})
	if err != nil {
		return errors.Join(ErrPersistence, err)
	}
	return nil
}

// fetchSource downloads the video into a per-video temp dir. The returned
// cleanup removes it.
func (s *service) fetchSource(ctx context.Context, video *entities.Video) (string, func(), error) {
	tempDir := filepath.Join("temp", video.ID.String())
	if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	localPath := filepath.Join(tempDir, filepath.Base(video.SourcePath))
	if err := s.blobs.Fetch(ctx, video.SourcePath, localPath); err != nil {
		cleanup()
		return "", nil, err
	}
	return localPath, cleanup, nil
}

// tally folds fan-out outcomes into the report. Persistence failures abort
// the advance call; provider failures only mark the unit so the next pass
// retries it.
func (s *service) tally(ctx context.Context, stage constant.Stage, outcomes []fanout.Outcome[struct{}], report *dto.AdvanceReport) error {
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			continue
		}
		if errors.Is(outcome.Err, ErrPersistence) {
			return outcome.Err
		}

		report.Failed++
		retriable := "false"
		var providerErr *intelligence.ProviderError
		if errors.As(outcome.Err, &providerErr) && providerErr.Retriable {
			report.Retriable++
			retriable = "true"
		}
		metrics.UnitFailures.WithLabelValues(stage.String(), retriable).Inc()
		zerolog.Ctx(ctx).Warn().Err(outcome.Err).Str("stage", stage.String()).Msg("unit failed, left for retry")
	}
	return nil
}
