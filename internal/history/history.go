// Package history stores one record per polling cycle.
package history

import (
	"context"

	"github.com/tinoosan/fota/internal/data"
)

type Repo interface {
	Reader
	Writer
}

type Reader interface {
	// List returns attempts newest first.
	List(ctx context.Context) (data.Attempts, error)
	Get(ctx context.Context, id string) (*data.Attempt, error)
}

type Writer interface {
	Add(ctx context.Context, a *data.Attempt) (*data.Attempt, error)
	// Update loads the attempt, applies mutate and stores the result.
	Update(ctx context.Context, id string, mutate func(*data.Attempt) error) (*data.Attempt, error)
}
