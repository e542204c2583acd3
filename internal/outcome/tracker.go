// Package outcome implements the per-(channel,address,ordinal) state
// machine of §4.11: open/updatePrice/reachedCheckpoints/complete, the
// fresh-start re-monitoring rule, and dead-token immediate completion.
// Mutation of a given (channel, address) pair is serialized per-pair via a
// striped lock set, matching §5's "all mutations of its outcome are
// serialized" requirement without forcing every pair through one global
// dedicated goroutine.
package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/persistence"
)

// Tracker owns the active/completed stores; all mutation of a SignalOutcome
// goes through its methods.
type Tracker struct {
	active    persistence.ActiveStore
	completed persistence.CompletedStore

	stripeMu sync.Mutex
	stripes  map[string]*sync.Mutex
}

func New(active persistence.ActiveStore, completed persistence.CompletedStore) *Tracker {
	return &Tracker{
		active:    active,
		completed: completed,
		stripes:   map[string]*sync.Mutex{},
	}
}

// Get returns the active outcome for (channel, address), if any.
func (t *Tracker) Get(ctx context.Context, channelID, address string) (*domainmodel.SignalOutcome, bool, error) {
	return t.active.Get(ctx, channelID, address)
}

func (t *Tracker) lockFor(channelID, address string) *sync.Mutex {
	key := channelID + "|" + address
	t.stripeMu.Lock()
	defer t.stripeMu.Unlock()
	m, ok := t.stripes[key]
	if !ok {
		m = &sync.Mutex{}
		t.stripes[key] = m
	}
	return m
}

// Open implements §4.11's open(): idempotent if an active signal already
// exists for (channel, address); otherwise computes the fresh-start ordinal
// from completed-store history and creates a new in_progress (or
// insufficient_data, if entryPrice is unknown) outcome.
func (t *Tracker) Open(ctx context.Context, channelID, address string, chain domainmodel.Chain, entryPrice float64, entryPriceSource domainmodel.PriceSource, entryT time.Time, messageID string) (*domainmodel.SignalOutcome, error) {
	lock := t.lockFor(channelID, address)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok, err := t.active.Get(ctx, channelID, address); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	history, err := t.completed.ByChannelAddress(ctx, channelID, address)
	if err != nil {
		return nil, err
	}
	previousOrdinals := make([]int, 0, len(history))
	for _, h := range history {
		previousOrdinals = append(previousOrdinals, h.SignalOrdinal)
	}

	status := domainmodel.StatusInProgress
	if entryPrice <= 0 {
		status = domainmodel.StatusInsufficientData
	}

	outcome := &domainmodel.SignalOutcome{
		ChannelID:             channelID,
		Address:               address,
		Chain:                 chain,
		SignalOrdinal:         1 + len(history),
		PreviousOrdinals:      previousOrdinals,
		FirstMessageID:        messageID,
		EntryPrice:            entryPrice,
		EntryTimestamp:        entryT,
		EntryPriceSource:      entryPriceSource,
		CurrentPrice:          entryPrice,
		ATHPrice:              entryPrice,
		ATHTimestamp:          entryT,
		ATHMultiplier:         1,
		CurrentMultiplier:     1,
		CheckpointMultipliers: map[string]*float64{},
		Status:                status,
	}

	if err := t.active.Put(ctx, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// UpdatePrice implements §4.11's updatePrice(): advances current_price and,
// if it is a new high, the ATH fields and ATH multiplier.
func (t *Tracker) UpdatePrice(ctx context.Context, channelID, address string, price float64, at time.Time) (*domainmodel.SignalOutcome, error) {
	lock := t.lockFor(channelID, address)
	lock.Lock()
	defer lock.Unlock()

	o, ok, err := t.active.Get(ctx, channelID, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	o.CurrentPrice = price
	if o.EntryPrice > 0 {
		o.CurrentMultiplier = price / o.EntryPrice
	}
	if price > o.ATHPrice {
		o.ATHPrice = price
		o.ATHTimestamp = at
		if o.EntryPrice > 0 {
			o.ATHMultiplier = price / o.EntryPrice
		}
	}

	if err := t.active.Put(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ReachedCheckpoints implements §4.11's reachedCheckpoints(): the subset of
// named offsets whose elapsed time since entry has passed.
func ReachedCheckpoints(now, entryT time.Time) []string {
	elapsed := now.Sub(entryT)
	var reached []string
	for _, name := range domainmodel.CheckpointOrder {
		if elapsed >= domainmodel.CheckpointOffsets[name] {
			reached = append(reached, name)
		}
	}
	return reached
}

// SetCheckpointMultiplier backfills a single checkpoint's multiplier, e.g.
// from a historical OHLC candle close (§4.13 smart-checkpoint backfill) or a
// live price update.
func (t *Tracker) SetCheckpointMultiplier(ctx context.Context, channelID, address, checkpoint string, multiplier float64) error {
	lock := t.lockFor(channelID, address)
	lock.Lock()
	defer lock.Unlock()

	o, ok, err := t.active.Get(ctx, channelID, address)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if o.CheckpointMultipliers == nil {
		o.CheckpointMultipliers = map[string]*float64{}
	}
	m := multiplier
	o.CheckpointMultipliers[checkpoint] = &m
	return t.active.Put(ctx, o)
}

// Complete implements §4.11's complete(): marks status completed, sets
// is_winner per the ≥2.0 ATH-multiplier threshold, and atomically moves the
// outcome from the active store to the completed store.
func (t *Tracker) Complete(ctx context.Context, channelID, address string, cause domainmodel.CompletionCause) (*domainmodel.SignalOutcome, error) {
	lock := t.lockFor(channelID, address)
	lock.Lock()
	defer lock.Unlock()

	o, ok, err := t.active.Get(ctx, channelID, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	o.Status = domainmodel.StatusCompleted
	o.CompletionCause = cause
	o.IsWinner = o.ATHMultiplier >= 2.0

	if err := t.completed.Append(ctx, o); err != nil {
		return nil, err
	}
	if err := t.active.Delete(ctx, channelID, address); err != nil {
		return nil, err
	}
	return o, nil
}

// CompleteDead implements the §4.6 dead-token immediate-completion path:
// applies the classification's fixed completion multiplier to both current
// and ATH multiplier before completing with CompletionDeadToken.
func (t *Tracker) CompleteDead(ctx context.Context, channelID, address string, class deadtoken.Classification) (*domainmodel.SignalOutcome, error) {
	mult, hasFixed := class.CompletionMultiplier()

	lock := t.lockFor(channelID, address)
	lock.Lock()
	o, ok, err := t.active.Get(ctx, channelID, address)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if !ok {
		lock.Unlock()
		return nil, nil
	}

	o.DeadToken = true
	o.DeadTokenReason = string(class)
	if hasFixed {
		o.CurrentMultiplier = mult
		o.ATHMultiplier = mult
		if o.EntryPrice > 0 {
			o.CurrentPrice = o.EntryPrice * mult
			o.ATHPrice = o.EntryPrice * mult
		}
	}
	if err := t.active.Put(ctx, o); err != nil {
		lock.Unlock()
		return nil, err
	}
	lock.Unlock()

	return t.Complete(ctx, channelID, address, domainmodel.CompletionDeadToken)
}
