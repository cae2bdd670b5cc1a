package main

import "github.com/stackgraft/stackgraft/cmd/stackgraft/commands"

func main() {
	commands.Execute()
}
