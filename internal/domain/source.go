package domain

import "context"

// SnapshotSource fetches the pull-path portions of a snapshot. Each call is
// independent so that a failure in one portion does not affect the others.
type SnapshotSource interface {
	FetchPools(ctx context.Context) ([]PoolState, error)
	FetchSwaps(ctx context.Context) ([]SwapEvent, error)
	FetchMeta(ctx context.Context) (RunMeta, error)
}

// HealthProber checks backend liveness. A nil error means alive.
type HealthProber interface {
	Probe(ctx context.Context) error
}

// PushSink receives normalized live-channel messages and status changes.
type PushSink interface {
	ApplyPush(msg PushMessage)
	SetLiveState(state LiveState)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub notifications and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LiveConn is an open live-channel connection yielding normalized messages.
type LiveConn interface {
	Next() (PushMessage, error)
	Close() error
}

// LiveDialer opens live-channel connections.
type LiveDialer interface {
	Dial(ctx context.Context) (LiveConn, error)
}
