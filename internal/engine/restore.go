package engine

import (
	"fmt"
	"log/slog"

	"stablecoin_go/internal/domain"
)

// Restore replays journal records, in order, onto the ledger. Records must
// continue the engine's sequence without gaps. Token balances are not
// touched; the caller owns reconciling custody.
func (e *Engine) Restore(records []*domain.JournalRecord) error {
	release, err := e.enter()
	if err != nil {
		return err
	}
	defer release()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rec := range records {
		if rec.Seq != e.nextSeq {
			return fmt.Errorf("%w: expected seq %d, got %d", domain.ErrSequenceGap, e.nextSeq, rec.Seq)
		}
		if !rec.Op.IsMutating() {
			return fmt.Errorf("journal seq %d: unknown op %q", rec.Seq, rec.Op)
		}
		if err := e.ledger.Apply(rec.Deltas); err != nil {
			return fmt.Errorf("journal seq %d: %w", rec.Seq, err)
		}
		e.nextSeq++
	}

	e.logger.Info("ledger restored from journal",
		slog.Int("records", len(records)),
		slog.Uint64("next_seq", e.nextSeq),
	)
	return nil
}
