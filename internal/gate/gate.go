// Package gate holds the human-paced signals a sync run waits on before it
// opens the listing. Waits have no timeout of their own; only the caller's
// context ends them.
package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
)

type Gate interface {
	Wait(ctx context.Context) error
}

// Open never blocks. Use it when the browser profile is already signed in.
type Open struct{}

func (Open) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Stdin blocks until a line is read, e.g. after the operator pressed ENTER.
type Stdin struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

func (s *Stdin) Wait(ctx context.Context) error {
	if s.Out != nil && s.Prompt != "" {
		fmt.Fprintln(s.Out, s.Prompt)
	}

	read := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(s.In).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		read <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-read:
		if err != nil {
			return errors.Wrap(err, "failed to read confirmation")
		}
		return nil
	}
}

// Manual is released programmatically, for example from an HTTP handler.
type Manual struct {
	once     sync.Once
	released chan struct{}
}

func NewManual() *Manual {
	return &Manual{released: make(chan struct{})}
}

// Release unblocks all current and future waiters. Calling it more than once
// is harmless.
func (m *Manual) Release() {
	m.once.Do(func() { close(m.released) })
}

func (m *Manual) Released() bool {
	select {
	case <-m.released:
		return true
	default:
		return false
	}
}

func (m *Manual) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.released:
		return nil
	}
}
