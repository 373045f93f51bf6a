package executor

import (
	"github.com/rs/zerolog"

	"github.com/dingodb/dingo-executor/pkg/log"
)

func taskLogger(t *Task) zerolog.Logger {
	return log.WithTaskType(t.Type()).With().Int64("task_id", t.ID()).Logger()
}
