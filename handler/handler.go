package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"worker-ingest/constant"
	"worker-ingest/dto"
	"worker-ingest/service"
)

type ServiceDependencies struct {
	Pipeline service.Service
}

// videoLocks serializes advance calls per video id. The pipeline core
// assumes at most one active advance per video; different videos proceed
// independently.
var videoLocks sync.Map

// LockVideo acquires the per-video advance lock and returns its release.
// Shared with the HTTP advance route so both triggers honor the same
// serialization contract.
func LockVideo(id uuid.UUID) func() {
	mu, _ := videoLocks.LoadOrStore(id, &sync.Mutex{})
	mutex := mu.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

// ProcessVideoHandler consumes a process-video message and drives the
// pipeline until no stage remains. A partially-advanced stage returns an
// error so the consumer's backoff schedules another pass for the leftover
// units.
func ProcessVideoHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.ProcessVideoMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal process video message")
		return err
	}

	videoId := message.VideoId
	if videoId == uuid.Nil {
		if message.ObjectPath == "" {
			return fmt.Errorf("process video message carries neither video id nor object path")
		}
		video, err := deps.Pipeline.Register(ctx, message.ObjectPath, message.FileName)
		if err != nil {
			return err
		}
		videoId = video.ID
	}

	zerolog.Ctx(ctx).Info().Str("video_id", videoId.String()).Msg("received process video message")

	unlock := LockVideo(videoId)
	defer unlock()

	for {
		report, err := deps.Pipeline.Advance(ctx, videoId)
		if err != nil {
			return err
		}
		if report.Stage == constant.StageNone {
			return nil
		}
		if report.Partial() {
			return fmt.Errorf("stage %s partially advanced: %d of %d units failed", report.Stage, report.Failed, report.Units)
		}
	}
}
