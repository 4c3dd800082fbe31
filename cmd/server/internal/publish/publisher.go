package publish

import (
	"context"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// Publisher is the write path's distribution strategy, chosen once at
// startup: through the broker when it is enabled, straight into the fan-out
// bridge when it is not. The write path itself never branches on the broker.
type Publisher interface {
	// PublishObservation distributes a freshly persisted observation on both
	// routing dimensions: once keyed by its identity, once by its category.
	PublishObservation(ctx context.Context, obs models.Observation) error

	// PublishTombstone distributes a deletion marker the same two ways.
	PublishTombstone(ctx context.Context, category, id string) error
}
