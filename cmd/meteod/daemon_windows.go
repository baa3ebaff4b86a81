//go:build windows

package main

import "os/exec"

// configureDaemonAttrs is a no-op on Windows; there is no session to detach.
func configureDaemonAttrs(cmd *exec.Cmd) {}
