// Copyright 2026 The TimedGeo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/tourvisual/timedgeo/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
