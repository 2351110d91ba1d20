package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWriter_Format(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Success("logged in")
	w.Error("login failed: Invalid credentials")
	require.Equal(t, "[ok] logged in\n[error] login failed: Invalid credentials\n", buf.String())
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	var r Recorder
	r.Success("a")
	r.Error("b")
	r.Error("c")
	require.Equal(t, []string{"a"}, r.Successes())
	require.Equal(t, []string{"b", "c"}, r.Errors())
	require.Len(t, r.Messages(), 3)
	r.Reset()
	require.Empty(t, r.Messages())
}

func TestNopAndZap(t *testing.T) {
	t.Parallel()
	var n Notifier = Nop{}
	n.Success("x")
	n.Error("y")

	n = Zap{Log: zaptest.NewLogger(t)}
	n.Success("x")
	n.Error("y")
}
