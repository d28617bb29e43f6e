package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"worker-ingest/constant"
)

type AudioChunk struct {
	ID                  uuid.UUID                 `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	VideoId             uuid.UUID                 `json:"video_id" gorm:"type:uuid;not null;uniqueIndex:unique_chunk;constraint:OnDelete:CASCADE"`
	ChunkIndex          int                       `json:"chunk_index" gorm:"not null;uniqueIndex:unique_chunk"`
	StartTime           float64                   `json:"start_time" gorm:"type:double precision;not null;check:end_time > start_time"`
	EndTime             float64                   `json:"end_time" gorm:"type:double precision;not null"`
	Status              constant.AudioChunkStatus `json:"status" gorm:"type:varchar(30);not null;default:'PENDING_TRANSCRIPTION';index:idx_audio_index_status"`
	TranscriptText      *string                   `json:"transcript_text" gorm:"type:text"`
	TranscriptEmbedding *pgvector.Vector          `json:"transcript_embedding" gorm:"type:vector(1536)"`
	CreatedAt           time.Time                 `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time                 `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (AudioChunk) TableName() string {
	return "audio_index"
}
