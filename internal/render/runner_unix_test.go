//go:build unix

package render

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; echo oops >&2"}}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Contains(t, string(res.Output), "hello")
	assert.Contains(t, string(res.Output), "oops")
	assert.False(t, res.TimedOut)
	assert.False(t, res.Canceled)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo boom; exit 3"}}, nil)
	require.Error(t, err)
	assert.Contains(t, string(res.Output), "boom")
	assert.False(t, res.TimedOut)
}

func TestExecRunner_TimeoutKillsProcessGroup(t *testing.T) {
	// the background child keeps the output pipe open; only a group kill ends it quickly
	r := ExecRunner{WaitDelay: 20 * time.Second}
	res, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & sleep 30"},
		Timeout: 200 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Canceled)
	assert.Less(t, res.Duration, 10*time.Second)
}

func TestExecRunner_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := ExecRunner{}.Run(ctx, Command{Name: "sleep", Args: []string{"30"}, Timeout: time.Minute}, nil)
	require.Error(t, err)
	assert.True(t, res.Canceled)
	assert.False(t, res.TimedOut)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{Name: "docrender-no-such-binary"}, nil)
	require.Error(t, err)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd", string(b.Bytes()))
}
