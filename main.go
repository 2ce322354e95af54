package main

import "github.com/jywlabs/sitetriage/cmd"

func main() {
	cmd.Execute()
}
