package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"worker-ingest/constant"
	"worker-ingest/entities"
)

// VideoRepository is the metadata store adapter. It is the single source of
// truth for what work remains on a video: every child status mutation goes
// through it, and the payload+status co-writes happen in one Updates call so
// a unit's status never advances without its payload.
type VideoRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context, tx VideoRepository) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB

	FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	FindVideoBySourcePath(ctx context.Context, sourcePath string) (*entities.Video, error)
	CreateVideo(ctx context.Context, video *entities.Video) error
	UpdateVideo(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteVideo(ctx context.Context, id uuid.UUID) error

	BulkCreateAudioChunks(ctx context.Context, chunks []*entities.AudioChunk) error
	BulkCreateFrames(ctx context.Context, frames []*entities.Frame) error
	DeleteAudioChunksByVideoId(ctx context.Context, videoId uuid.UUID) error
	DeleteFramesByVideoId(ctx context.Context, videoId uuid.UUID) error

	GetAudioChunksByStatus(ctx context.Context, videoId uuid.UUID, status constant.AudioChunkStatus) ([]*entities.AudioChunk, error)
	GetFramesByStatus(ctx context.Context, videoId uuid.UUID, status constant.FrameStatus) ([]*entities.Frame, error)
	CountAudioChunksByStatus(ctx context.Context, videoId uuid.UUID) (map[constant.AudioChunkStatus]int64, error)
	CountFramesByStatus(ctx context.Context, videoId uuid.UUID) (map[constant.FrameStatus]int64, error)

	UpdateAudioChunk(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFrame(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) VideoRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context, tx VideoRepository) error, opts ...*sql.TxOptions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(ctx, &repo{db: tx})
	}, opts...)
}

func (r *repo) FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	video := &entities.Video{}
	err := r.db.WithContext(ctx).First(video, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return video, nil
}

func (r *repo) FindVideoBySourcePath(ctx context.Context, sourcePath string) (*entities.Video, error) {
	video := &entities.Video{}
	err := r.db.WithContext(ctx).First(video, "source_path = ?", sourcePath).Error
	if err != nil {
		return nil, err
	}

	return video, nil
}

func (r *repo) CreateVideo(ctx context.Context, video *entities.Video) error {
	return r.db.WithContext(ctx).Create(video).Error
}

func (r *repo) UpdateVideo(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entities.Video{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	// chunk and frame rows go with the video via ON DELETE CASCADE
	return r.db.WithContext(ctx).Delete(&entities.Video{}, "id = ?", id).Error
}

func (r *repo) BulkCreateAudioChunks(ctx context.Context, chunks []*entities.AudioChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(chunks).Error
}

func (r *repo) BulkCreateFrames(ctx context.Context, frames []*entities.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(frames).Error
}

func (r *repo) DeleteAudioChunksByVideoId(ctx context.Context, videoId uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entities.AudioChunk{}, "video_id = ?", videoId).Error
}

func (r *repo) DeleteFramesByVideoId(ctx context.Context, videoId uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entities.Frame{}, "video_id = ?", videoId).Error
}

func (r *repo) GetAudioChunksByStatus(ctx context.Context, videoId uuid.UUID, status constant.AudioChunkStatus) ([]*entities.AudioChunk, error) {
	var chunks []*entities.AudioChunk
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND status = ?", videoId, status).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) GetFramesByStatus(ctx context.Context, videoId uuid.UUID, status constant.FrameStatus) ([]*entities.Frame, error) {
	var frames []*entities.Frame
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND status = ?", videoId, status).
		Order("timestamp_seconds ASC").
		Find(&frames).Error
	if err != nil {
		return nil, err
	}
	return frames, nil
}

type statusCount struct {
	Status string
	Count  int64
}

func (r *repo) CountAudioChunksByStatus(ctx context.Context, videoId uuid.UUID) (map[constant.AudioChunkStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).Model(&entities.AudioChunk{}).
		Select("status, count(*) as count").
		Where("video_id = ?", videoId).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[constant.AudioChunkStatus]int64, len(rows))
	for _, row := range rows {
		counts[constant.AudioChunkStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *repo) CountFramesByStatus(ctx context.Context, videoId uuid.UUID) (map[constant.FrameStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).Model(&entities.Frame{}).
		Select("status, count(*) as count").
		Where("video_id = ?", videoId).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[constant.FrameStatus]int64, len(rows))
	for _, row := range rows {
		counts[constant.FrameStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *repo) UpdateAudioChunk(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entities.AudioChunk{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) UpdateFrame(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entities.Frame{}).Where("id = ?", id).Updates(updates).Error
}
