// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPipeReadiness_Ready(t *testing.T) {
	h, err := (&PipeReadiness{Timeout: time.Second}).Arm()
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, []string{"LINKAGE_READY_FD=3"}, h.Env)
	child := h.ExtraFiles[0]
	_, err = child.Write([]byte{1})
	require.NoError(t, err)
	h.Started()

	require.NoError(t, h.Wait(context.Background()))
}

func TestPipeReadiness_Timeout(t *testing.T) {
	h, err := (&PipeReadiness{Timeout: 20 * time.Millisecond}).Arm()
	require.NoError(t, err)
	defer h.Close()

	// Keep the write end open so only the timeout can end the wait
	err = h.Wait(context.Background())
	require.ErrorIs(t, err, ErrReadinessTimeout)
}

func TestPipeReadiness_ChildExited(t *testing.T) {
	h, err := (&PipeReadiness{Timeout: time.Second}).Arm()
	require.NoError(t, err)
	defer h.Close()

	// Closing every write end without a byte looks like a dead child
	h.Started()
	err = h.Wait(context.Background())
	require.ErrorIs(t, err, ErrReadinessLost)
}

func TestPipeReadiness_ContextCancel(t *testing.T) {
	h, err := (&PipeReadiness{}).Arm()
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.Wait(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestSignalReadiness(t *testing.T) {
	s := NewSignalReadiness(5 * time.Second)
	defer s.Stop()

	h, err := s.Arm()
	require.NoError(t, err)
	require.Equal(t, []string{"LINKAGE_READY_SIGNAL=1"}, h.Env)

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGALRM))
	require.NoError(t, h.Wait(context.Background()))
}

func TestSignalReadiness_Timeout(t *testing.T) {
	s := NewSignalReadiness(20 * time.Millisecond)
	defer s.Stop()

	h, err := s.Arm()
	require.NoError(t, err)
	require.ErrorIs(t, h.Wait(context.Background()), ErrReadinessTimeout)
}

func TestNotifyReady_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	// NotifyReady takes ownership of the descriptor, so hand it a duplicate
	fd, err := unix.Dup(int(w.Fd()))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Setenv(ReadyFDEnv, strconv.Itoa(fd))
	require.NoError(t, NotifyReady())

	var b [1]byte
	n, err := r.Read(b[:])
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNotifyReady_NoSupervisor(t *testing.T) {
	t.Setenv(ReadyFDEnv, "")
	t.Setenv(ReadySignalEnv, "")
	require.NoError(t, NotifyReady())
}
