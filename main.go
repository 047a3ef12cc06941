package main

import "github.com/coder7br/tjscope/cmd"

func main() {
	cmd.Execute()
}
