package main

import "github.com/callrunner/callrunner/cmd"

func main() {
	cmd.Execute()
}
