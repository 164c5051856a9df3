package main

import "restorify/cmd/cli"

func main() {
	cli.Execute()
}
