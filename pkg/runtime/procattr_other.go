// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package runtime

import "syscall"

func childProcAttr() *syscall.SysProcAttr {
	return nil
}
