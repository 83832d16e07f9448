package main

import "github.com/dtran/mailflow/internal/cli"

func main() {
	cli.Execute()
}
