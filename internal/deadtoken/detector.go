// Package deadtoken implements the dead-token classifier of §4.6: supply,
// reserves, and transfer-activity checks against an optional on-chain reader,
// with results persisted to the blacklist store so later appearances skip
// all pricing calls. Grounded on the teacher's pattern of dialing an RPC
// endpoint via go-ethereum's ethclient and addressing contracts with
// common.HexToAddress (ChoSanghyuk-blackholedex cmd/main.go, pkg/contractclient),
// generalized from transaction decoding to the read-only supply/reserves/
// transfer-count queries this detector needs.
package deadtoken

import (
	"context"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/persistence"
)

// Classification is the §4.6 outcome category.
type Classification string

const (
	ClassAlive       Classification = "alive"
	ClassDeadAtCall  Classification = "dead_at_call"
	ClassDeadLP      Classification = "dead_lp"
	ClassStale       Classification = "stale"
	ClassTooNew      Classification = "too_new"
)

// CompletionMultiplier is the fixed multiplier §4.6 assigns at completion
// for each dead classification; alive and too-new carry no fixed multiplier
// (the outcome tracker computes theirs normally).
func (c Classification) CompletionMultiplier() (float64, bool) {
	switch c {
	case ClassDeadAtCall, ClassStale:
		return 0.0, true
	case ClassDeadLP:
		return 0.2, true
	default:
		return 0, false
	}
}

func (c Classification) IsDead() bool {
	return c == ClassDeadAtCall || c == ClassDeadLP || c == ClassStale
}

// OnChainSnapshot is the set of facts the detector needs about a contract;
// an OnChainReader is the collaborator that supplies them.
type OnChainSnapshot struct {
	Supply          float64
	HasReserves     bool // contract exposes a reserves accessor (LP pair shape)
	TransferCount   int
	ContractAgeDays float64
}

// OnChainReader is implemented by a chain-specific RPC client. A nil reader
// is valid: the detector then treats every address as alive, since it has no
// basis to condemn it.
type OnChainReader interface {
	Read(ctx context.Context, chain domainmodel.Chain, address string) (*OnChainSnapshot, error)
}

// Detector classifies addresses and maintains the persistent blacklist.
type Detector struct {
	reader    OnChainReader
	blacklist persistence.BlacklistStore
}

func New(reader OnChainReader, blacklist persistence.BlacklistStore) *Detector {
	return &Detector{reader: reader, blacklist: blacklist}
}

// IsBlacklisted checks the persistent blacklist before any pricing call is
// attempted, per §4.6's "subsequent appearances skip all pricing calls".
func (d *Detector) IsBlacklisted(ctx context.Context, chain domainmodel.Chain, address string) (bool, error) {
	return d.blacklist.Contains(ctx, chain, address)
}

// Classify runs the §4.6 decision tree against a fresh on-chain read. If no
// OnChainReader is configured, the address is always alive: the detector has
// no data to condemn it on.
func (d *Detector) Classify(ctx context.Context, chain domainmodel.Chain, address string) (Classification, *OnChainSnapshot, error) {
	if d.reader == nil {
		return ClassAlive, nil, nil
	}

	snap, err := d.reader.Read(ctx, chain, address)
	if err != nil {
		return ClassAlive, nil, err
	}

	switch {
	case snap.Supply < 1000:
		return ClassDeadAtCall, snap, nil
	case snap.Supply < 10000 && snap.HasReserves && snap.ContractAgeDays >= 7:
		return ClassDeadLP, snap, nil
	case snap.TransferCount == 0 && snap.ContractAgeDays > 7:
		return ClassStale, snap, nil
	case snap.TransferCount == 0 && snap.ContractAgeDays <= 7:
		return ClassTooNew, snap, nil
	default:
		return ClassAlive, snap, nil
	}
}

// ClassifyAndRecord classifies the address and, if dead, persists it to the
// blacklist so future lookups short-circuit via IsBlacklisted.
func (d *Detector) ClassifyAndRecord(ctx context.Context, chain domainmodel.Chain, address string) (Classification, error) {
	class, snap, err := d.Classify(ctx, chain, address)
	if err != nil {
		return ClassAlive, err
	}
	if !class.IsDead() {
		return class, nil
	}

	entry := domainmodel.DeadTokenEntry{
		Address:    address,
		Chain:      chain,
		Reason:     string(class),
		DetectedAt: time.Now(),
	}
	if snap != nil {
		entry.Supply = snap.Supply
		entry.Transfers = snap.TransferCount
	}
	if err := d.blacklist.Add(ctx, entry); err != nil {
		return class, err
	}
	return class, nil
}
