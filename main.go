package main

import "github.com/novojourney/novo/cli"

func main() {
	cli.Execute()
}
