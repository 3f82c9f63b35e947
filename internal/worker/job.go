package worker

import (
	"context"
	"time"
)

// Job is one unit of background work. Jobs sharing a Key are run in
// submission order relative to each other, and keys take turns.
type Job struct {
	Key     string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error

	stop bool
}

var stopJob = Job{stop: true}
