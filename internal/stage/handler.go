package stage

import (
	"context"

	"sprout/internal/store"
)

// Handler describes the contract the pipeline supervisor needs from each stage.
type Handler interface {
	Prepare(context.Context, *store.Session) error
	Execute(context.Context, *store.Session) error
	HealthCheck(context.Context) Health
}
