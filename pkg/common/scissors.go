package common

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScissorsErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbound_scissor_errors_caught",
			Help: "Total number of unhandled errors caught in background workers",
		})
)

// Runnable is a long-running background task. It should return once ctx is canceled.
type Runnable func(ctx context.Context) error

// RunWithScissors starts a goroutine running the given task. A panic is recovered and sent to errC as an error,
// as is any error returned by the task.
func RunWithScissors(ctx context.Context, errC chan error, name string, runnable Runnable) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errC <- panicToError(name, r)
				ScissorsErrors.Inc()
			}
		}()
		if err := runnable(ctx); err != nil {
			errC <- fmt.Errorf("%s: %w", name, err)
		}
	}()
}

func panicToError(name string, r interface{}) error {
	switch x := r.(type) {
	case error:
		return fmt.Errorf("%s: %w", name, x)
	default:
		return fmt.Errorf("%s: %v", name, x)
	}
}
