package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"worker-ingest/constant"
)

type Frame struct {
	ID               uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	VideoId          uuid.UUID            `json:"video_id" gorm:"type:uuid;not null;uniqueIndex:unique_frame_timestamp;constraint:OnDelete:CASCADE"`
	FrameIndex       int                  `json:"frame_index" gorm:"not null"`
	TimestampSeconds float64              `json:"timestamp_seconds" gorm:"type:double precision;not null;uniqueIndex:unique_frame_timestamp"`
	Status           constant.FrameStatus `json:"status" gorm:"type:varchar(30);not null;default:'PENDING_IMAGE_EMBEDDING';index:idx_frame_index_status"`
	ImageEmbedding   *pgvector.Vector     `json:"image_embedding" gorm:"type:vector(512)"`
	CaptionText      *string              `json:"caption_text" gorm:"type:text"`
	CaptionEmbedding *pgvector.Vector     `json:"caption_embedding" gorm:"type:vector(1536)"`
	CreatedAt        time.Time            `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time            `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Frame) TableName() string {
	return "frame_index"
}
