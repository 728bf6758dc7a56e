package react

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

type emitFunc func(ctx context.Context, chunk ports.StreamChunk) error

// turnStream hands chunks from the worker goroutine to the consumer over an
// unbuffered channel, so the worker is never more than one chunk ahead.
type turnStream struct {
	chunks chan ports.StreamChunk
	done   chan struct{}
	cancel context.CancelFunc

	// Written by the worker before chunks is closed.
	result *ports.TurnResult
	err    error

	closeOnce sync.Once
}

func startTurnStream(parent context.Context, work func(ctx context.Context, emit emitFunc) (*ports.TurnResult, error)) *turnStream {
	ctx, cancel := context.WithCancel(parent)
	s := &turnStream{
		chunks: make(chan ports.StreamChunk),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		defer close(s.chunks)
		s.result, s.err = work(ctx, s.emit)
	}()
	return s
}

func (s *turnStream) emit(ctx context.Context, chunk ports.StreamChunk) error {
	select {
	case s.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next chunk, io.EOF when the turn finished, or the error
// that ended it.
func (s *turnStream) Next(ctx context.Context) (ports.StreamChunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if s.err != nil {
			return ports.StreamChunk{}, s.err
		}
		if s.result == nil {
			return ports.StreamChunk{}, errors.New("turn ended without a result")
		}
		return ports.StreamChunk{}, io.EOF
	case <-ctx.Done():
		return ports.StreamChunk{}, ctx.Err()
	}
}

// Result is the finished turn, nil before Next returned io.EOF.
func (s *turnStream) Result() *ports.TurnResult {
	select {
	case <-s.done:
		return s.result
	default:
		return nil
	}
}

// Close cancels the worker and waits for it to exit.
func (s *turnStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so a worker blocked on send observes cancellation promptly.
		for range s.chunks {
		}
		<-s.done
	})
	return nil
}
