package entities

import (
	"time"

	"github.com/google/uuid"
	"worker-ingest/constant"
)

type Video struct {
	ID                    uuid.UUID            `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Filename              string               `json:"filename" gorm:"type:varchar(255)"`
	Bucket                string               `json:"bucket" gorm:"type:varchar(255);not null"`
	SourcePath            string               `json:"source_path" gorm:"type:varchar(500);not null;uniqueIndex:unique_source_path"`
	MimeType              *string              `json:"mime_type" gorm:"type:varchar(50)"`
	DurationSeconds       *float64             `json:"duration_seconds" gorm:"type:double precision"`
	FileSizeBytes         *int64               `json:"file_size_bytes" gorm:"type:bigint"`
	Status                constant.VideoStatus `json:"status" gorm:"type:varchar(20);not null;default:'UPLOADED';index:idx_video_index_status"`
	AudioDone             bool                 `json:"audio_done" gorm:"not null;default:false"`
	FramesDone            bool                 `json:"frames_done" gorm:"not null;default:false"`
	ProcessingStartedAt   *time.Time           `json:"processing_started_at" gorm:"type:timestamptz"`
	ProcessingCompletedAt *time.Time           `json:"processing_completed_at" gorm:"type:timestamptz"`
	CreatedAt             time.Time            `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time            `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Video) TableName() string {
	return "video_index"
}
