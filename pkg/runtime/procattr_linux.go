// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// childProcAttr kills the child if the supervisor dies without reaping it.
func childProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: unix.SIGKILL}
}
