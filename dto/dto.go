package dto

import (
	"github.com/google/uuid"
	"worker-ingest/constant"
)

// ProcessVideoMessage triggers ingestion of an uploaded video. VideoId may be
// zero, in which case the worker registers (or re-uses) a record for
// ObjectPath before advancing.
type ProcessVideoMessage struct {
	VideoId    uuid.UUID `json:"videoId"`
	ObjectPath string    `json:"objectPath"`
	FileName   string    `json:"fileName"`
}

// AdvanceReport describes the outcome of a single advance call: which stage
// ran and how its units fared.
type AdvanceReport struct {
	VideoId   uuid.UUID      `json:"videoId"`
	Stage     constant.Stage `json:"stage"`
	Units     int            `json:"units"`
	Failed    int            `json:"failed"`
	Retriable int            `json:"retriable"`
}

// Partial reports whether the stage left units behind for a later advance.
func (r *AdvanceReport) Partial() bool {
	return r.Failed > 0
}

type RegisterVideoRequest struct {
	ObjectPath string `json:"objectPath" binding:"required"`
	FileName   string `json:"fileName"`
}
