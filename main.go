package main

import "github.com/SullivanCamp/AggieShell/cmd"

func main() {
	cmd.Execute()
}
