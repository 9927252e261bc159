// Package locking provides a distributed mutex keyed by pipeline name,
// guaranteeing at most one runner executes a given pipeline at a time across
// all worker replicas.
package locking

import (
	"context"
	"time"
)

// Lock is an ephemeral lock descriptor. The token is generated at acquire
// time and proves ownership when releasing, guarding against deleting a key
// that has since expired and been re-acquired by another holder.
type Lock struct {
	Key   string
	Token string
}

// Manager acquires and releases distributed locks.
//
// Acquire returns nil both on contention and on backend errors (fail-open to
// "not acquired"); it never returns an error to the caller. Release is a
// no-op for a nil lock and swallows backend errors; the TTL guarantees
// eventual release even when the delete is lost.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) *Lock
	Release(ctx context.Context, lock *Lock)
}
