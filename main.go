package main

import (
	"os"

	"amber/cmd"
)

func main() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "daemon")
	}
	cmd.Execute()
}
