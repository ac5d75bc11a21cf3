package main

import "github.com/rehud/rehud-delta/cmd"

func main() {
	cmd.Execute()
}
