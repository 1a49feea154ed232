package main

import (
	"os"

	"github.com/dbdiag/dbdiag/cmd"
)

func main() {
	os.Exit(cmd.ExecuteWithExitCode())
}
