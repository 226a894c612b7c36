package ports

import "context"

// BreachChecker reports how many times a password appears in known breach
// corpora. Implementations are best-effort: callers treat any error as "no
// finding" and must never block a registration on the check.
type BreachChecker interface {
	PwnedCount(ctx context.Context, password string) (int, error)
}
