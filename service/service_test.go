package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"worker-ingest/config"
	"worker-ingest/constant"
	"worker-ingest/entities"
	"worker-ingest/intelligence"
	"worker-ingest/media"
	"worker-ingest/repository"
	"worker-ingest/service"
	"worker-ingest/storage"
)

// fakeRepo is an in-memory VideoRepository. Updates are applied the same way
// the gorm implementation applies them, keyed by column name.
type fakeRepo struct {
	mu     sync.Mutex
	videos map[uuid.UUID]*entities.Video
	chunks map[uuid.UUID]*entities.AudioChunk
	frames map[uuid.UUID]*entities.Frame

	updateChunkErr error
	updateVideoErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		videos: make(map[uuid.UUID]*entities.Video),
		chunks: make(map[uuid.UUID]*entities.AudioChunk),
		frames: make(map[uuid.UUID]*entities.Frame),
	}
}

func (r *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context, tx repository.VideoRepository) error, _ ...*sql.TxOptions) error {
	return callback(ctx, r)
}

func (r *fakeRepo) GetDB() *gorm.DB { return nil }

func (r *fakeRepo) FindVideoById(_ context.Context, id uuid.UUID) (*entities.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	video, ok := r.videos[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *video
	return &copied, nil
}

func (r *fakeRepo) FindVideoBySourcePath(_ context.Context, sourcePath string) (*entities.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, video := range r.videos {
		if video.SourcePath == sourcePath {
			copied := *video
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) CreateVideo(_ context.Context, video *entities.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *video
	r.videos[video.ID] = &copied
	return nil
}

func (r *fakeRepo) UpdateVideo(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if r.updateVideoErr != nil {
		return r.updateVideoErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	video, ok := r.videos[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["status"].(constant.VideoStatus); ok {
		video.Status = v
	}
	if v, ok := updates["audio_done"].(bool); ok {
		video.AudioDone = v
	}
	if v, ok := updates["frames_done"].(bool); ok {
		video.FramesDone = v
	}
	if v, ok := updates["mime_type"].(string); ok {
		video.MimeType = &v
	}
	if v, ok := updates["file_size_bytes"].(int64); ok {
		video.FileSizeBytes = &v
	}
	if v, ok := updates["duration_seconds"].(float64); ok {
		video.DurationSeconds = &v
	}
	if v, ok := updates["processing_started_at"].(time.Time); ok {
		video.ProcessingStartedAt = &v
	}
	if v, present := updates["processing_completed_at"]; present {
		if v == nil {
			video.ProcessingCompletedAt = nil
		} else if ts, ok := v.(time.Time); ok {
			video.ProcessingCompletedAt = &ts
		}
	}
	return nil
}

func (r *fakeRepo) DeleteVideo(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.videos, id)
	for chunkId, chunk := range r.chunks {
		if chunk.VideoId == id {
			delete(r.chunks, chunkId)
		}
	}
	for frameId, frame := range r.frames {
		if frame.VideoId == id {
			delete(r.frames, frameId)
		}
	}
	return nil
}

func (r *fakeRepo) BulkCreateAudioChunks(_ context.Context, chunks []*entities.AudioChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chunk := range chunks {
		copied := *chunk
		r.chunks[chunk.ID] = &copied
	}
	return nil
}

func (r *fakeRepo) BulkCreateFrames(_ context.Context, frames []*entities.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, frame := range frames {
		copied := *frame
		r.frames[frame.ID] = &copied
	}
	return nil
}

func (r *fakeRepo) DeleteAudioChunksByVideoId(_ context.Context, videoId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, chunk := range r.chunks {
		if chunk.VideoId == videoId {
			delete(r.chunks, id)
		}
	}
	return nil
}

func (r *fakeRepo) DeleteFramesByVideoId(_ context.Context, videoId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, frame := range r.frames {
		if frame.VideoId == videoId {
			delete(r.frames, id)
		}
	}
	return nil
}

func (r *fakeRepo) GetAudioChunksByStatus(_ context.Context, videoId uuid.UUID, status constant.AudioChunkStatus) ([]*entities.AudioChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.AudioChunk
	for _, chunk := range r.chunks {
		if chunk.VideoId == videoId && chunk.Status == status {
			copied := *chunk
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (r *fakeRepo) GetFramesByStatus(_ context.Context, videoId uuid.UUID, status constant.FrameStatus) ([]*entities.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Frame
	for _, frame := range r.frames {
		if frame.VideoId == videoId && frame.Status == status {
			copied := *frame
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampSeconds < out[j].TimestampSeconds })
	return out, nil
}

func (r *fakeRepo) CountAudioChunksByStatus(_ context.Context, videoId uuid.UUID) (map[constant.AudioChunkStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[constant.AudioChunkStatus]int64)
	for _, chunk := range r.chunks {
		if chunk.VideoId == videoId {
			counts[chunk.Status]++
		}
	}
	return counts, nil
}

func (r *fakeRepo) CountFramesByStatus(_ context.Context, videoId uuid.UUID) (map[constant.FrameStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[constant.FrameStatus]int64)
	for _, frame := range r.frames {
		if frame.VideoId == videoId {
			counts[frame.Status]++
		}
	}
	return counts, nil
}

func (r *fakeRepo) UpdateAudioChunk(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if r.updateChunkErr != nil {
		return r.updateChunkErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["transcript_text"].(string); ok {
		chunk.TranscriptText = &v
	}
	if v, ok := updates["transcript_embedding"].(pgvector.Vector); ok {
		chunk.TranscriptEmbedding = &v
	}
	if v, ok := updates["status"].(constant.AudioChunkStatus); ok {
		chunk.Status = v
	}
	return nil
}

func (r *fakeRepo) UpdateFrame(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame, ok := r.frames[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["caption_text"].(string); ok {
		frame.CaptionText = &v
	}
	if v, ok := updates["image_embedding"].(pgvector.Vector); ok {
		frame.ImageEmbedding = &v
	}
	if v, ok := updates["caption_embedding"].(pgvector.Vector); ok {
		frame.CaptionEmbedding = &v
	}
	if v, ok := updates["status"].(constant.FrameStatus); ok {
		frame.Status = v
	}
	return nil
}

type fakeBlobStore struct {
	missing bool
}

func (b *fakeBlobStore) Stat(_ context.Context, _ string) (*storage.ObjectInfo, error) {
	if b.missing {
		return nil, storage.ErrNotFound
	}
	return &storage.ObjectInfo{Size: 4096, MimeType: "video/mp4"}, nil
}

func (b *fakeBlobStore) Fetch(_ context.Context, _, destPath string) error {
	if b.missing {
		return storage.ErrNotFound
	}
	return os.WriteFile(destPath, []byte("mp4"), 0o644)
}

type fakeProber struct {
	info *media.Info
	err  error
}

func (p *fakeProber) Probe(_ context.Context, _ string) (*media.Info, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

// fakeExtractor stamps the segment boundaries into the payload so the
// intelligence fake can target specific units.
type fakeExtractor struct{}

func (e *fakeExtractor) ExtractAudioSegment(_ context.Context, _ string, startSec, _ float64) ([]byte, error) {
	return []byte(fmt.Sprintf("wav:%.3f", startSec)), nil
}

func (e *fakeExtractor) ExtractFrame(_ context.Context, _ string, timestampSec float64) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg:%.3f", timestampSec)), nil
}

type fakeIntel struct {
	transcribeErrFor map[string]error
	captionErrFor    map[string]error
}

func (i *fakeIntel) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if err, ok := i.transcribeErrFor[string(audio)]; ok {
		return "", err
	}
	return "transcript for " + string(audio), nil
}

func (i *fakeIntel) EmbedText(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (i *fakeIntel) EmbedImage(_ context.Context, _ []byte) ([]float32, error) {
	return []float32{0.4, 0.5}, nil
}

func (i *fakeIntel) Caption(_ context.Context, image []byte) (string, error) {
	if err, ok := i.captionErrFor[string(image)]; ok {
		return "", err
	}
	return "caption for " + string(image), nil
}

func testConfig() *config.Config {
	return &config.Config{
		MinIOBucket: "videos",
		Pipeline: config.Pipeline{
			ChunkLengthSeconds: 10,
			OverlapSeconds:     1,
			FrameSampleCount:   45,
			Concurrency:        4,
			ProviderTimeout:    5 * time.Second,
		},
	}
}

type testHarness struct {
	svc   service.Service
	repo  *fakeRepo
	blobs *fakeBlobStore
	intel *fakeIntel
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	t.Cleanup(func() { os.RemoveAll("temp") })

	repo := newFakeRepo()
	blobs := &fakeBlobStore{}
	intel := &fakeIntel{}
	prober := &fakeProber{info: &media.Info{DurationMs: 95_000, FrameCount: 2850, FPS: 30}}
	svc := service.NewService(repo, blobs, prober, &fakeExtractor{}, intel, testConfig())

	return &testHarness{svc: svc, repo: repo, blobs: blobs, intel: intel}
}

func (h *testHarness) register(t *testing.T) *entities.Video {
	t.Helper()
	video, err := h.svc.Register(context.Background(), "uploads/demo.mp4", "demo.mp4")
	require.NoError(t, err)
	return video
}

func TestRegisterIsIdempotentBySourcePath(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.Register(context.Background(), "uploads/demo.mp4", "demo.mp4")
	require.NoError(t, err)
	assert.Equal(t, constant.VideoStatusUploaded, first.Status)

	second, err := h.svc.Register(context.Background(), "uploads/demo.mp4", "demo.mp4")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.repo.videos, 1)
}

func TestAdvanceFetchAndSplitPlansChildren(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)

	report, err := h.svc.Advance(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageFetchAndSplit, report.Stage)
	assert.Equal(t, 1, report.Units)
	assert.Equal(t, 0, report.Failed)

	stored, err := h.repo.FindVideoById(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.VideoStatusProcessing, stored.Status)
	require.NotNil(t, stored.DurationSeconds)
	assert.InDelta(t, 95.0, *stored.DurationSeconds, 0.001)
	require.NotNil(t, stored.MimeType)
	assert.Equal(t, "video/mp4", *stored.MimeType)
	assert.NotNil(t, stored.ProcessingStartedAt)
	assert.Nil(t, stored.ProcessingCompletedAt)

	audioCounts, _ := h.repo.CountAudioChunksByStatus(context.Background(), video.ID)
	assert.Equal(t, int64(11), audioCounts[constant.AudioChunkStatusPendingTranscription])

	frameCounts, _ := h.repo.CountFramesByStatus(context.Background(), video.ID)
	assert.Equal(t, int64(45), frameCounts[constant.FrameStatusPendingImageEmbedding])
}

func TestAdvanceRunsPipelineToCompletion(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()

	var stages []constant.Stage
	for i := 0; i < 20; i++ {
		report, err := h.svc.Advance(ctx, video.ID)
		require.NoError(t, err)
		stages = append(stages, report.Stage)
		assert.Equal(t, 0, report.Failed, "stage %s", report.Stage)
		if report.Stage == constant.StageNone {
			break
		}
	}

	assert.Equal(t, []constant.Stage{
		constant.StageFetchAndSplit,
		constant.StageTranscribeAudio,
		constant.StageEmbedTranscripts,
		constant.StageEmbedFrames,
		constant.StageCaptionFrames,
		constant.StageEmbedCaptions,
		constant.StageFinalize,
		constant.StageNone,
	}, stages)

	stored, err := h.repo.FindVideoById(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.VideoStatusCompleted, stored.Status)
	assert.True(t, stored.AudioDone)
	assert.True(t, stored.FramesDone)
	assert.NotNil(t, stored.ProcessingCompletedAt)

	for _, chunk := range h.repo.chunks {
		assert.Equal(t, constant.AudioChunkStatusComplete, chunk.Status)
		require.NotNil(t, chunk.TranscriptText)
		assert.NotNil(t, chunk.TranscriptEmbedding)
	}
	for _, frame := range h.repo.frames {
		assert.Equal(t, constant.FrameStatusComplete, frame.Status)
		assert.NotNil(t, frame.ImageEmbedding)
		require.NotNil(t, frame.CaptionText)
		assert.NotNil(t, frame.CaptionEmbedding)
	}

	// a completed video never moves again
	report, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageNone, report.Stage)
}

func TestAdvanceIsolatesUnitFailures(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()

	// chunk index 2 starts at 18s; its transcription keeps failing retriably
	h.intel.transcribeErrFor = map[string]error{
		"wav:18.000": &intelligence.ProviderError{
			Provider:  "groq",
			Retriable: true,
			Err:       errors.New("status 429"),
		},
	}

	_, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)

	report, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageTranscribeAudio, report.Stage)
	assert.Equal(t, 11, report.Units)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Retriable)
	assert.True(t, report.Partial())

	audioCounts, _ := h.repo.CountAudioChunksByStatus(ctx, video.ID)
	assert.Equal(t, int64(1), audioCounts[constant.AudioChunkStatusPendingTranscription])
	assert.Equal(t, int64(10), audioCounts[constant.AudioChunkStatusPendingEmbedding])

	for _, chunk := range h.repo.chunks {
		if chunk.ChunkIndex == 2 {
			assert.Equal(t, constant.AudioChunkStatusPendingTranscription, chunk.Status)
			assert.Nil(t, chunk.TranscriptText)
		}
	}

	// next advance re-resolves the same stage with just the failed unit
	report, err = h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageTranscribeAudio, report.Stage)
	assert.Equal(t, 1, report.Units)
	assert.Equal(t, 1, report.Failed)

	// provider recovers, the stage drains
	h.intel.transcribeErrFor = nil
	report, err = h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageTranscribeAudio, report.Stage)
	assert.Equal(t, 1, report.Units)
	assert.Equal(t, 0, report.Failed)

	audioCounts, _ = h.repo.CountAudioChunksByStatus(ctx, video.ID)
	assert.Equal(t, int64(0), audioCounts[constant.AudioChunkStatusPendingTranscription])
	assert.Equal(t, int64(11), audioCounts[constant.AudioChunkStatusPendingEmbedding])
}

func TestAdvanceMissingSourceMarksVideoFailed(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()
	h.blobs.missing = true

	report, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageFetchAndSplit, report.Stage)
	assert.Equal(t, 1, report.Failed)

	stored, err := h.repo.FindVideoById(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.VideoStatusFailed, stored.Status)

	// the object shows up later and ingestion restarts from the top
	h.blobs.missing = false
	report, err = h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageFetchAndSplit, report.Stage)
	assert.Equal(t, 0, report.Failed)

	stored, err = h.repo.FindVideoById(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.VideoStatusProcessing, stored.Status)
}

func TestAdvanceFailedVideoReplansFromScratch(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()

	_, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	_, err = h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)

	require.NoError(t, h.repo.UpdateVideo(ctx, video.ID, map[string]interface{}{
		"status": constant.VideoStatusFailed,
	}))

	report, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.StageFetchAndSplit, report.Stage)

	// earlier children are gone; the replan recreated the full pending set
	audioCounts, _ := h.repo.CountAudioChunksByStatus(ctx, video.ID)
	assert.Equal(t, int64(11), audioCounts[constant.AudioChunkStatusPendingTranscription])
	assert.Equal(t, int64(0), audioCounts[constant.AudioChunkStatusPendingEmbedding])
	frameCounts, _ := h.repo.CountFramesByStatus(ctx, video.ID)
	assert.Equal(t, int64(45), frameCounts[constant.FrameStatusPendingImageEmbedding])
}

func TestAdvancePersistenceErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()

	_, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)

	h.repo.updateChunkErr = errors.New("connection reset")
	_, err = h.svc.Advance(ctx, video.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrPersistence)
}

func TestAdvanceUnknownVideo(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Advance(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrPersistence)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteRemovesVideoAndChildren(t *testing.T) {
	h := newHarness(t)
	video := h.register(t)
	ctx := context.Background()

	_, err := h.svc.Advance(ctx, video.ID)
	require.NoError(t, err)
	require.NotEmpty(t, h.repo.chunks)
	require.NotEmpty(t, h.repo.frames)

	require.NoError(t, h.svc.Delete(ctx, video.ID))
	assert.Empty(t, h.repo.videos)
	assert.Empty(t, h.repo.chunks)
	assert.Empty(t, h.repo.frames)
}
