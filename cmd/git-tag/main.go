package main

import "github.com/fabien-marty/git-tag/internal/infra/controllers/cli"

func main() {
	cli.Main()
}
