// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Linkage - Networked robot control
//
// One binary for every process role: runtime supervisor, carburetor motor
// driver, cockpit backend, and robot programs.

package main

import (
	"os"

	"github.com/Thermoquad/linkage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
