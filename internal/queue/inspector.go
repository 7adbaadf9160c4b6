package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mediamill/mediamill/internal/media"
)

// Depths summarizes one queue's backlog as seen from the broker's stream.
type Depths struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
}

// Inspector reads queue depth directly from the broker's Redis streams. It
// only observes; delivery state belongs to the broker.
type Inspector struct {
	client  *redis.Client
	streams map[media.Type]string
	group   string
}

func NewInspector(client *redis.Client, group string, streams map[media.Type]string) *Inspector {
	return &Inspector{client: client, streams: streams, group: group}
}

// Depth reports the backlog for one media type's queue.
func (i *Inspector) Depth(ctx context.Context, mediaType media.Type) (*Depths, error) {
	stream, ok := i.streams[mediaType]
	if !ok {
		return nil, fmt.Errorf("no stream configured for media type %q", mediaType)
	}

	total, err := i.client.XLen(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("stream length %s: %w", stream, err)
	}

	var active int64
	pending, err := i.client.XPending(ctx, stream, i.group).Result()
	if err != nil && err != redis.Nil {
		// The group may not exist until the first worker starts.
		if !isNoGroupErr(err) {
			return nil, fmt.Errorf("pending entries %s: %w", stream, err)
		}
	} else if pending != nil {
		active = pending.Count
	}

	waiting := total - active
	if waiting < 0 {
		waiting = 0
	}
	return &Depths{Waiting: waiting, Active: active}, nil
}

// All returns depths for every configured queue.
func (i *Inspector) All(ctx context.Context) (map[media.Type]*Depths, error) {
	out := make(map[media.Type]*Depths, len(i.streams))
	for mediaType := range i.streams {
		d, err := i.Depth(ctx, mediaType)
		if err != nil {
			return nil, err
		}
		out[mediaType] = d
	}
	return out, nil
}

func isNoGroupErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) >= 7 && msg[:7] == "NOGROUP"
}
