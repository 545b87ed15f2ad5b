package database

import (
	"context"
)

// Database opens transactions against the cluster's coordination layer
type Database interface {
	Begin() Transaction
}

// Transaction is one attempt against the coordination layer. The usual shape
// is a retry loop: run the ops, Commit, and on failure hand the error to
// OnError which backs off and reports whether the attempt may be repeated.
type Transaction interface {
	// SetPrioritySystemImmediate lets the read version request jump ahead of
	// normal traffic
	SetPrioritySystemImmediate()
	// SetLockAware lets the transaction proceed while the database is locked
	SetLockAware()
	GetReadVersion(ctx context.Context) (int64, error)
	Set(key, value string)
	Clear(key string)
	Commit(ctx context.Context) error
	// OnError classifies err. For transient failures it backs off and returns
	// nil, telling the caller to retry from the top. Anything else, including
	// ctx cancellation, comes back as the final error.
	OnError(ctx context.Context, err error) error
}
