package main

import (
	"os"

	"github.com/gridrun/gridrun/internal/pkg/service/scheduler/cli"
)

func main() {
	cmd := cli.NewRootCommand(os.Stdout, os.Stderr)
	os.Exit(cmd.Execute())
}
