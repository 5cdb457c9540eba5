//go:build !cgo

package main

import "github.com/spf13/cobra"

// addPlatformCommands adds nothing: the ONNX runtime is only used by cgo builds.
func addPlatformCommands(*cobra.Command) {}
