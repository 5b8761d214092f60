package indexer

import (
	"context"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/indexgen/pkg/errors"
)

const sentinelLine = -1

// Message carries one word occurrence from the orchestrator to a worker.
type Message struct {
	Word string
	Line int
}

// Sentinel marks the end of a worker's stream. It is sent exactly once per
// worker, after every data message. Data messages always have Line >= 1.
var Sentinel = Message{Word: "", Line: sentinelLine}

func (m Message) IsSentinel() bool {
	return m.Word == "" && m.Line == sentinelLine
}

// channelSet is one bounded channel per worker, indexed by worker id.
type channelSet []chan Message

func newChannelSet(workers, capacity int) channelSet {
	cs := make(channelSet, workers)
	for i := range cs {
		cs[i] = make(chan Message, capacity)
	}
	return cs
}

// send blocks while the worker's channel is full. Cancellation of ctx while
// blocked is a send failure.
func (cs channelSet) send(ctx context.Context, worker int, msg Message) error {
	select {
	case cs[worker] <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: worker %d: %v", apperrors.ErrSendFailed, worker, context.Cause(ctx))
	}
}

// close releases every channel. Only call once all workers have exited.
func (cs channelSet) close() {
	for _, ch := range cs {
		close(ch)
	}
}
