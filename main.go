package main

import "github.com/Patch-Manager/tarmac-annotate/cmd"

func main() {
	cmd.Execute()
}
