package main

import "github.com/helpinghand/relay/cmd"

func main() {
	cmd.Execute()
}
