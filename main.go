package main

import (
	"github.com/quarkbyte/domscout/cmd"
)

// main is the entry point for the domscout CLI.
func main() {
	cmd.Execute()
}
