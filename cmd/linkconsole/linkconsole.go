package main

import (
	"harnsnode/cmd/linkconsole/app"
	"os"

	"k8s.io/component-base/logs"
)

func main() {
	cmd := app.NewConsoleCmd()
	logs.InitLogs()
	defer logs.FlushLogs()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
