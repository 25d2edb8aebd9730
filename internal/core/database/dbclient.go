package db

import (
	"context"

	"github.com/markdave123-py/docsift/internal/core"
)

// Store is everything the Postgres client provides.
type Store interface {
	core.DbClient
	core.ProjectStore
	core.VectorIndex
	Ping(ctx context.Context) error
}

var _ Store = (*DatabaseClient)(nil)
