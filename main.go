package main

import "github.com/brackenfield/gbtk/cmd"

func main() {
	cmd.Execute()
}
