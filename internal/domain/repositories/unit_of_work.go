// Package repositories declares the persistence interfaces the orchestrator
// and the other core components depend on. Concrete GORM-backed
// implementations live in internal/infrastructure/repositories.
package repositories

import "context"

// UnitOfWork scopes a set of repository calls in a single atomic
// transaction: Do runs fn inside a DB transaction injected into the
// returned context; WithLock marks the context so repository reads within
// it take a row lock.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	WithLock(ctx context.Context) context.Context
}
