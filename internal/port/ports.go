// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service
// layer from Supabase, the Evolution API gateway and the dispatch queue.
package port

import (
	"context"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Notifier surfaces a transient notification to the users of a company.
// Implementations must not fail the caller: delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, companyID string, level domain.NotificationLevel, title, message string)
}

// MessageQueue hands messages over to the delivery workers.
type MessageQueue interface {
	Enqueue(ctx context.Context, job domain.DispatchJob) error
}
