package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// observedStream reports how a streamed turn ended: completed, failed, or
// abandoned by the consumer.
type observedStream struct {
	ports.ChunkStream

	agent *Agent
	ctx   context.Context
	entry string
	start time.Time

	once sync.Once
}

func (a *Agent) observeUpstream(ctx context.Context, entry string, upstream ports.ChunkStream) ports.ChunkStream {
	a.metrics().IncrementActiveStreams(ctx)
	return &observedStream{
		ChunkStream: upstream,
		agent:       a,
		ctx:         context.WithoutCancel(ctx),
		entry:       entry,
		start:       a.now(),
	}
}

func (s *observedStream) Next(ctx context.Context) (ports.StreamChunk, error) {
	chunk, err := s.ChunkStream.Next(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.finish(func() { s.agent.recordTurn(s.ctx, s.entry, "success", s.start) })
	default:
		s.finish(func() { s.agent.recordFailure(ctx, s.entry, s.start, err) })
	}
	return chunk, err
}

func (s *observedStream) Close() error {
	err := s.ChunkStream.Close()
	s.finish(func() { s.agent.recordTurn(s.ctx, s.entry, "canceled", s.start) })
	return err
}

func (s *observedStream) finish(record func()) {
	s.once.Do(func() {
		record()
		s.agent.metrics().DecrementActiveStreams(s.ctx)
	})
}
