package interfaces

import (
	"context"

	"github.com/hibiken/asynq"
)

// TaskHandler handles one asynq task type.
type TaskHandler interface {
	Handle(ctx context.Context, t *asynq.Task) error
}
