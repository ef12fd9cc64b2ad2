// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkage

// Subsystem is a modular part of a robot, such as a drivetrain. The Robot
// calls Setup once, Tick every period and Shutdown once, always in the order
// subsystems were added.
type Subsystem interface {
	Setup(state *State)
	Tick(state *State)
	Shutdown(state *State)
}

// BaseSubsystem implements Subsystem with no-ops. Embed it to implement only
// the callbacks you need.
type BaseSubsystem struct{}

func (BaseSubsystem) Setup(*State)    {}
func (BaseSubsystem) Tick(*State)     {}
func (BaseSubsystem) Shutdown(*State) {}
