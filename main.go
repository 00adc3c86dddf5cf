package main

import "github.com/tanq16/rangeload/cmd"

func main() {
	cmd.Execute()
}
