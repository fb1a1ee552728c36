// Package main is the entry point of the kahaf credential service.
//
// @title        kahaf credential API
// @version      1.0
// @description  Registration, login, e-mail verification and password recovery.
// @BasePath     /api
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
