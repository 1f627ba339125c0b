package sinkdriver

import (
	"context"
	"fmt"

	"github.com/ssw/routeflow/pkg/codec"
	"github.com/ssw/routeflow/pkg/event"
)

// RequestSender is implemented by a concrete sink integration: given an
// already-encoded request body, perform the actual I/O and report the
// status code sinkdriver's retry classifier needs (an HTTP-shaped sink
// returns the real status; a non-HTTP sink like Kafka maps its own
// success/retriable/fatal outcomes onto the same 2xx/429/5xx/4xx
// convention the driver understands).
type RequestSender interface {
	Send(ctx context.Context, body []byte) (statusCode int, err error)
}

// Driver composes the Encoder, ConcurrencyLimiter, RetryPolicy, and
// HealthGate into the single pipeline every reference sink
// (refsinks/kafka and friends) calls Dispatch against, matching the
// component chain spec.md §4.5 describes: Batcher -> Request builder ->
// Adaptive-concurrency service -> Retry policy -> Health/circuit
// breaker. Batching and partitioning are not part of Driver: Dispatch
// takes an already-formed batch.
type Driver struct {
	Encoder     *codec.Encoder
	Concurrency *ConcurrencyLimiter
	Retry       *RetryPolicy
	Health      *HealthGate
	Sender      RequestSender
}

// Dispatch encodes arr, then runs it through concurrency admission,
// retrying per Retry's policy, gated by Health: a request is only sent
// at all once Health.Admit returns, and its outcome both updates the
// concurrency controller and is reported back to Health.
func (d *Driver) Dispatch(ctx context.Context, arr event.Array) error {
	body, err := d.Encoder.Encode(arr)
	if err != nil {
		return fmt.Errorf("sinkdriver: encode batch: %w", err)
	}

	probe, err := d.Health.Admit(ctx)
	if err != nil {
		return fmt.Errorf("sinkdriver: health admit: %w", err)
	}

	var lastHealthy bool
	err = d.Retry.Do(ctx, func(ctx context.Context) (int, error) {
		permit, acqErr := d.Concurrency.Acquire(ctx)
		if acqErr != nil {
			return 0, acqErr
		}
		status, sendErr := d.Sender.Send(ctx, body)
		verdict, _ := d.Retry.Classifier.Classify(status, sendErr)
		switch verdict {
		case Successful:
			d.Concurrency.Release(permit, OutcomeSuccess)
			lastHealthy = true
		case Retry:
			d.Concurrency.Release(permit, OutcomeRetriableError)
			lastHealthy = false
		default:
			d.Concurrency.Release(permit, OutcomeOtherError)
			lastHealthy = false
		}
		return status, sendErr
	})

	d.Health.Resolve(probe, lastHealthy)
	return err
}
