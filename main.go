package main

import (
	"os"

	"dropletup/cmd"
	"dropletup/internal/logging"
)

func main() {
	if err := logging.InitLogger(); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	code := cmd.Execute()
	// Sync reports EINVAL for stderr on some terminals.
	_ = logging.Sync()
	os.Exit(code)
}
