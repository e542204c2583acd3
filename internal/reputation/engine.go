// Package reputation implements the §4.14 reputation engine: a pure
// recompute over the completed store, never a source of truth itself.
package reputation

import (
	"context"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/persistence"
)

// Engine recomputes per-channel reputation from the completed store. It
// trusts the outcome tracker's persisted IsWinner flag rather than
// re-deriving the ≥2.0 ATH-multiplier cutoff itself.
type Engine struct {
	completed persistence.CompletedStore
}

func New(completed persistence.CompletedStore) *Engine {
	return &Engine{completed: completed}
}

// Recompute implements §4.14: for every channel represented in the
// completed store, aggregate counts, average multipliers, mean time-to-ATH
// over winners, win-rate, and the composite reputation score. Dead-token
// outcomes count as losers and are never excluded.
func (e *Engine) Recompute(ctx context.Context) (map[string]*domainmodel.ChannelReputation, error) {
	all, err := e.completed.All(ctx)
	if err != nil {
		return nil, err
	}

	byChannel := map[string][]*domainmodel.SignalOutcome{}
	for _, o := range all {
		byChannel[o.ChannelID] = append(byChannel[o.ChannelID], o)
	}

	out := map[string]*domainmodel.ChannelReputation{}
	for channelID, outcomes := range byChannel {
		out[channelID] = recomputeOne(channelID, outcomes)
	}
	return out, nil
}

func recomputeOne(channelID string, outcomes []*domainmodel.SignalOutcome) *domainmodel.ChannelReputation {
	rep := &domainmodel.ChannelReputation{ChannelID: channelID, LastUpdated: time.Now()}
	if len(outcomes) == 0 {
		return rep
	}

	var athSum, finalSum float64
	var timeToATHSum time.Duration
	var winnerCount int

	for _, o := range outcomes {
		rep.TotalSignals++
		athSum += o.ATHMultiplier
		finalSum += o.CurrentMultiplier

		switch {
		case o.DeadToken:
			rep.Dead++
			rep.Losers++
		case o.IsWinner:
			rep.Winners++
			winnerCount++
			timeToATHSum += o.ATHTimestamp.Sub(o.EntryTimestamp)
		case o.ATHMultiplier < 1.0:
			rep.Losers++
		default:
			rep.Neutrals++
		}
	}

	rep.AvgATHMultiplier = athSum / float64(rep.TotalSignals)
	rep.AvgFinalMultiplier = finalSum / float64(rep.TotalSignals)
	if winnerCount > 0 {
		rep.MeanTimeToATH = timeToATHSum / time.Duration(winnerCount)
	}
	rep.WinRate = float64(rep.Winners) / float64(rep.TotalSignals)
	rep.ReputationScore = compositeScore(rep.WinRate, rep.AvgATHMultiplier)

	return rep
}

// compositeScore is a weighted sum of normalized win-rate and average ATH
// multiplier, clipped to [0,1]. It is monotone non-decreasing in both
// inputs: higher win-rate or higher average multiplier never lowers the
// score, satisfying §4.14's design requirement.
func compositeScore(winRate, avgATHMultiplier float64) float64 {
	normalizedMultiplier := avgATHMultiplier / (avgATHMultiplier + 1) // maps [0,inf) -> [0,1), monotone increasing
	score := 0.6*winRate + 0.4*normalizedMultiplier
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
