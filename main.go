package main

import "github.com/icco/stepseq/cmd"

func main() {
	cmd.Execute()
}
