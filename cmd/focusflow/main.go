package main

import (
	"os"

	"focusflow/internal/commands"
	appLog "focusflow/internal/log"
)

func main() {
	if err := commands.New().Execute(); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}
