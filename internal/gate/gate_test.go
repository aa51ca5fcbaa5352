package gate

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	assert.NoError(t, Open{}.Wait(context.Background()))
}

func TestStdin(t *testing.T) {
	var out bytes.Buffer
	g := &Stdin{In: strings.NewReader("\n"), Out: &out, Prompt: "press enter"}

	require.NoError(t, g.Wait(context.Background()))
	assert.Contains(t, out.String(), "press enter")
}

func TestStdin_ContextCanceled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := (&Stdin{In: r}).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManual(t *testing.T) {
	m := NewManual()
	assert.False(t, m.Released())

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	m.Release()
	m.Release()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	assert.True(t, m.Released())
}
