package main // Entry point package

import "github.com/iliyamo/library-loans/internal/cli"

func main() {
	cli.Execute()
}
