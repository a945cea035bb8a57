package main

import "github.com/openswoop/rosterwatch/cmd"

func main() {
	cmd.Execute()
}
