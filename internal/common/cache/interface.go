// Package cache wraps the Redis counters shared by every service replica.
package cache

import (
	"context"
	"time"
)

// WindowCounter counts hits in fixed windows.
type WindowCounter interface {
	// IncrWindow adds one hit to key and returns the new count with the time
	// left in the window. The first hit opens a window of the given length.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Client is a WindowCounter backed by a remote connection.
type Client interface {
	WindowCounter
	Ping(ctx context.Context) error
	Close() error
}
