// Package bootstrap implements the §4.13 resumable historical backfill: on
// startup, for each configured channel not yet marked complete, fetch
// recent messages in reverse-chronological order, feed each through the
// coordinator, and periodically checkpoint progress so an interrupted run
// resumes without reprocessing. Grounded on the teacher's
// internal/log.StepLogger for per-channel stage reporting.
package bootstrap

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	signalwatchlog "github.com/tokencalls/signalwatch/internal/log"

	"github.com/tokencalls/signalwatch/internal/coordinator"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/message"
	"github.com/tokencalls/signalwatch/internal/persistence"
	"github.com/tokencalls/signalwatch/internal/transport"
)

const (
	defaultFetchLimit    = 100
	checkpointEveryN     = 10
	stageFetch           = "fetch page"
	stageProcess         = "process batch"
	stageCheckpoint      = "checkpoint"
)

// Backfiller drives the bootstrap for a fixed set of channels.
type Backfiller struct {
	transport transport.ChatTransport
	processor *message.Processor
	coord     *coordinator.Coordinator
	progress  persistence.ScrapingProgressStore
	fetchLimit int
}

func New(t transport.ChatTransport, proc *message.Processor, coord *coordinator.Coordinator, progress persistence.ScrapingProgressStore, fetchLimit int) *Backfiller {
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}
	return &Backfiller{transport: t, processor: proc, coord: coord, progress: progress, fetchLimit: fetchLimit}
}

// Run backfills every channel in channelIDs not already marked complete.
// A failure on one channel is logged and does not stop the others from
// being attempted. Cancellation is shared: once ctx is cancelled, Run
// returns before starting the next channel, so the caller's ctx governs how
// long any of this is allowed to run at all.
func (b *Backfiller) Run(ctx context.Context, channelIDs []string) {
	for _, channelID := range channelIDs {
		if ctx.Err() != nil {
			return
		}
		if err := b.runChannel(ctx, channelID); err != nil {
			log.Warn().Err(err).Str("channel_id", channelID).Msg("backfill for channel did not complete")
		}
	}
}

func (b *Backfiller) runChannel(ctx context.Context, channelID string) error {
	existing, ok, err := b.progress.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ok && existing.ScrapeComplete {
		return nil
	}
	if !ok {
		existing = &domainmodel.ScrapingProgress{ChannelID: channelID}
	}

	stepper := signalwatchlog.NewStepLogger("backfill:"+channelID, []string{stageFetch, stageProcess, stageCheckpoint})

	stepper.StartStep(stageFetch)
	events, err := b.transport.FetchRecent(ctx, channelID, b.fetchLimit)
	stepper.CompleteStep()
	if err != nil {
		stepper.Fail(err.Error())
		return err
	}

	// The transport returns newest-first; process oldest-first so that
	// LastProcessedID only advances and every checkpoint covers a prefix.
	sort.SliceStable(events, func(i, j int) bool {
		return !messageIDLessOrEqual(events[j].MessageID, events[i].MessageID)
	})

	stepper.StartStep(stageProcess)
	processedSinceCheckpoint := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if messageIDLessOrEqual(event.MessageID, existing.LastProcessedID) {
			continue // already processed in a prior, interrupted run
		}

		pm := b.processor.Process(event)
		if err := b.coord.Process(ctx, pm); err != nil {
			log.Warn().Err(err).Str("channel_id", channelID).Str("message_id", event.MessageID).Msg("backfill message processing failed, continuing")
		}

		existing.LastProcessedID = event.MessageID
		existing.TotalProcessed++
		processedSinceCheckpoint++

		if processedSinceCheckpoint >= checkpointEveryN {
			if err := b.progress.Put(ctx, existing); err != nil {
				log.Warn().Err(err).Str("channel_id", channelID).Msg("failed to write backfill checkpoint")
			}
			processedSinceCheckpoint = 0
		}
	}
	stepper.CompleteStep()

	stepper.StartStep(stageCheckpoint)
	if len(events) < b.fetchLimit && ctx.Err() == nil {
		existing.ScrapeComplete = true
	}
	err = b.progress.Put(ctx, existing)
	stepper.CompleteStep()
	stepper.Finish()
	return err
}

// messageIDLessOrEqual implements §4.13's "skip messages whose id <=
// last_processed": ids are compared numerically when both parse as
// integers (the common case for sequential chat message ids), falling back
// to a lexicographic compare otherwise.
func messageIDLessOrEqual(id, lastProcessed string) bool {
	if lastProcessed == "" {
		return false
	}
	idNum, idErr := strconv.ParseInt(id, 10, 64)
	lastNum, lastErr := strconv.ParseInt(lastProcessed, 10, 64)
	if idErr == nil && lastErr == nil {
		return idNum <= lastNum
	}
	return strings.Compare(id, lastProcessed) <= 0
}
