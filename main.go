package main

import "github.com/sw33tLie/fanmirror/cmd"

func main() {
	cmd.Execute()
}
