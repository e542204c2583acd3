// Package transport defines the chat-platform collaborator boundary:
// fetching recent history and subscribing to live message events, kept
// independent of any one chat platform's wire format.
package transport

import (
	"context"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// Handler receives one live message event from a subscription.
type Handler func(ctx context.Context, event domainmodel.MessageEvent) error

// ChatTransport is the collaborator boundary of §4.13/§4.16: a source of
// message events, either replayed on demand (FetchRecent, for bootstrap) or
// streamed (Subscribe, for live processing).
type ChatTransport interface {
	FetchRecent(ctx context.Context, channelID string, limit int) ([]domainmodel.MessageEvent, error)
	Subscribe(ctx context.Context, channelID string, handler Handler) error
	Close() error
}
