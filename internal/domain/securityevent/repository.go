package securityevent

import "context"

// Repository persists events. Implementations must not write through a
// transaction stored in ctx: a failed insert would abort the caller's work.
type Repository interface {
	Insert(ctx context.Context, ev *Event) error
	List(ctx context.Context, filter ListFilter) ([]Event, int, error)
}
