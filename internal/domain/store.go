package domain

import "context"

// ChainStore persists chain executions.
type ChainStore interface {
	Insert(ctx context.Context, exec ChainExecution) error
	ListRecent(ctx context.Context, limit int) ([]ChainExecution, error)
}
