package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/entity"
	"github.com/joseph-ayodele/datalake-etl/internal/repository"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("load queue is shutting down")

// Job is one append of an extracted record set to its sink table.
type Job struct {
	ID          uuid.UUID
	Dataset     constants.Dataset
	Records     []entity.Record
	SubmittedAt time.Time
	RunID       string
}

// Loader is the sink side of a job. *repository.RecordLoader satisfies it.
type Loader interface {
	Load(ctx context.Context, dataset constants.Dataset, records []entity.Record) (repository.LoadResult, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) (uuid.UUID, error)
	Shutdown(ctx context.Context)
}
