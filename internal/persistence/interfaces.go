// Package persistence defines the repository-style interfaces the outcome
// tracker, dead-token detector, and bootstrap components depend on, grounded
// on the teacher's internal/persistence/interfaces.go repository-interface
// pattern (there: TradesRepo/RegimeRepo backed by postgres; here: JSON-file
// backed stores, per spec §6's literal file layout).
package persistence

import (
	"context"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// ActiveStore is the "fresh" outcome store (tracking.json). Mutated only by
// the outcome tracker.
type ActiveStore interface {
	Get(ctx context.Context, channelID, address string) (*domainmodel.SignalOutcome, bool, error)
	Put(ctx context.Context, outcome *domainmodel.SignalOutcome) error
	Delete(ctx context.Context, channelID, address string) error
	All(ctx context.Context) ([]*domainmodel.SignalOutcome, error)
}

// CompletedStore is the append-only archive (completed_history.json).
type CompletedStore interface {
	Append(ctx context.Context, outcome *domainmodel.SignalOutcome) error
	ByChannelAddress(ctx context.Context, channelID, address string) ([]*domainmodel.SignalOutcome, error)
	All(ctx context.Context) ([]*domainmodel.SignalOutcome, error)
}

// ScrapingProgressStore persists per-channel bootstrap checkpoints
// (scraped_channels.json).
type ScrapingProgressStore interface {
	Get(ctx context.Context, channelID string) (*domainmodel.ScrapingProgress, bool, error)
	Put(ctx context.Context, progress *domainmodel.ScrapingProgress) error
	All(ctx context.Context) ([]*domainmodel.ScrapingProgress, error)
}

// BlacklistStore persists dead-token detections (dead_tokens_blacklist.json).
type BlacklistStore interface {
	Contains(ctx context.Context, chain domainmodel.Chain, address string) (bool, error)
	Add(ctx context.Context, entry domainmodel.DeadTokenEntry) error
	All(ctx context.Context) ([]domainmodel.DeadTokenEntry, error)
}
