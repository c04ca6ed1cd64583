package main

import "github.com/opsdash/scheduler/cmd"

func main() {
	cmd.Execute()
}
