package clients

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

var (
	// ErrEmptyBatch is returned by Flush when nothing was queued.
	ErrEmptyBatch = errors.New("batch has no pending calls")
	// ErrBatchFlushed is returned when a batch is reused after Flush.
	ErrBatchFlushed = errors.New("batch already flushed")
	// ErrNotFlushed is returned by Call.Err before the batch was flushed.
	ErrNotFlushed = errors.New("batch not flushed yet")
	// errSkipped marks calls that were not sent because an earlier one failed.
	errSkipped = errors.New("not sent, an earlier call in the batch failed")
)

type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Batch queues JSON-RPC calls and sends them in one round trip on Flush.
// Results of queued calls are only observable after Flush returned.
type Batch struct {
	caller   rpcCaller
	batching bool
	elems    []rpc.BatchElem
	flushed  bool
	flushErr error
}

// Call handle of a queued request. The result is written to the pointer
// passed to Queue.
type Call struct {
	batch *Batch
	idx   int
}

// NewBatch creates a batch. When batching is false Flush sends the queued
// calls one by one in queue order and stops at the first failure.
func NewBatch(caller rpcCaller, batching bool) *Batch {
	return &Batch{caller: caller, batching: batching}
}

// Queue adds a call to the batch.
func (b *Batch) Queue(method string, result any, args ...any) *Call {
	b.elems = append(b.elems, rpc.BatchElem{
		Method: method,
		Args:   args,
		Result: result,
	})
	return &Call{batch: b, idx: len(b.elems) - 1}
}

// Flush sends all queued calls. It returns an error only when the round trip
// itself failed, per-call errors are reported by Call.Err.
func (b *Batch) Flush(ctx context.Context) error {
	if b.flushed {
		return ErrBatchFlushed
	}
	if len(b.elems) == 0 {
		return ErrEmptyBatch
	}
	b.flushed = true

	if b.batching {
		b.flushErr = b.caller.BatchCallContext(ctx, b.elems)
		return b.flushErr
	}

	for i := range b.elems {
		elem := &b.elems[i]
		elem.Error = b.caller.CallContext(ctx, elem.Result, elem.Method, elem.Args...)
		if elem.Error != nil {
			for j := i + 1; j < len(b.elems); j++ {
				b.elems[j].Error = errSkipped
			}
			break
		}
	}
	return nil
}

// Err returns the outcome of the call. It is ErrNotFlushed until the batch
// was flushed.
func (c *Call) Err() error {
	if !c.batch.flushed {
		return ErrNotFlushed
	}
	if c.batch.flushErr != nil {
		return c.batch.flushErr
	}
	elem := c.batch.elems[c.idx]
	if elem.Error != nil {
		return errors.Wrap(elem.Error, elem.Method)
	}
	return nil
}
