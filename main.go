// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// EMSLink - EMS bus telegram monitor
//
// Reads the telegram stream an EMS gateway forwards from a heating bus,
// validates every frame and logs accepted telegrams to syslog.

package main

import (
	"os"

	"github.com/Thermoquad/emslink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
