package main

import (
	"github.com/zooyoda/workspace-mcp/cmd"
)

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
