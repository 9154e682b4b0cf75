// Package ledger is the double-entry, append-only record of every money
// movement the orchestrator performs. It is the one component every
// other money-moving path must clear before reporting success upstream.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/domain/entities"
	domainerrors "fanztrust.orchestrator/internal/domain/errors"
	"fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/pkg/logger"
)

// Ledger posts and queries balanced entry sets. Every money-moving action in
// the Orchestrator computes one balanced set and calls Post before returning
// success upstream.
type Ledger struct {
	repo  repositories.LedgerRepository
	clock clockwork.Clock
}

// New constructs a Ledger.
func New(repo repositories.LedgerRepository, clock clockwork.Clock) *Ledger {
	return &Ledger{repo: repo, clock: clock}
}

// Post atomically appends a balanced entry set under pairID. A second call
// with an identical set is idempotent and returns success without
// re-appending; a second call with a different set under the same pairID
// fails with ErrLedgerConflict. Rejects unbalanced sets and sets that
// mix currencies.
func (l *Ledger) Post(ctx context.Context, pairID string, entries []*entities.LedgerEntry) error {
	if len(entries) == 0 {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "ledger post requires at least one entry", nil)
	}

	currency := entries[0].Amount.Currency
	var debits, credits int64
	for _, e := range entries {
		if e.Amount.Currency != currency {
			return domainerrors.New(domainerrors.CodeInvalidRequest, "ledger entries must share one currency", nil)
		}
		if e.Amount.MinorUnits < 0 {
			return domainerrors.New(domainerrors.CodeInvalidRequest, "ledger entries must be non-negative", nil)
		}
		switch e.Direction {
		case entities.Debit:
			debits += e.Amount.MinorUnits
		case entities.Credit:
			credits += e.Amount.MinorUnits
		default:
			return domainerrors.New(domainerrors.CodeInvalidRequest, "ledger entry direction must be debit or credit", nil)
		}
	}
	if debits != credits {
		return domainerrors.New(domainerrors.CodeInvalidRequest, "unbalanced ledger entry set", nil).
			WithHint("sum of debits must equal sum of credits")
	}

	existing, found, err := l.repo.ExistsPair(ctx, pairID)
	if err != nil {
		return domainerrors.New(domainerrors.CodeUnknown, "ledger pair lookup failed", err)
	}
	if found {
		if sameEntrySet(existing, entries) {
			logger.WithContext(ctx).Debug("ledger post idempotent replay", zap.String("pair_id", pairID))
			return nil
		}
		logger.WithContext(ctx).Error("ledger conflict: pair_id reused with different entries",
			zap.String("pair_id", pairID))
		return domainerrors.ErrLedgerConflict
	}

	now := l.clock.Now()
	for _, e := range entries {
		if e.EntryID == "" {
			e.EntryID = uuid.NewString()
		}
		e.PairID = pairID
		e.CreatedAt = now
	}

	if err := l.repo.Append(ctx, entries); err != nil {
		return domainerrors.New(domainerrors.CodeUnknown, "ledger append failed", err)
	}
	return nil
}

// Balance sums entries for account as of the given time (nil means "now").
func (l *Ledger) Balance(ctx context.Context, account string, asOf *time.Time) (entities.Money, error) {
	return l.repo.Balance(ctx, account, asOf)
}

// Replay returns every entry posted against account, oldest first, for
// audit.
func (l *Ledger) Replay(ctx context.Context, account string) ([]*entities.LedgerEntry, error) {
	return l.repo.Replay(ctx, account)
}

// sameEntrySet compares two entry sets ignoring entry id / created_at, which
// are assigned at post time, not supplied by the caller.
func sameEntrySet(existing, proposed []*entities.LedgerEntry) bool {
	if len(existing) != len(proposed) {
		return false
	}
	type key struct {
		account   string
		direction entities.LedgerDirection
		minor     int64
		currency  string
	}
	count := make(map[key]int, len(existing))
	for _, e := range existing {
		count[key{e.Account, e.Direction, e.Amount.MinorUnits, e.Amount.Currency}]++
	}
	for _, e := range proposed {
		k := key{e.Account, e.Direction, e.Amount.MinorUnits, e.Amount.Currency}
		if count[k] == 0 {
			return false
		}
		count[k]--
	}
	for _, n := range count {
		if n != 0 {
			return false
		}
	}
	return true
}

// PairID derives a deterministic pair id from an action so retries cannot
// double-post. Callers pass stable components, e.g.
// PairID("tx", transactionID, "capture").
func PairID(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ":" + p
	}
	return out
}
