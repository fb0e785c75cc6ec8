package main

import "enterprise-kb/internal/cli"

func main() {
	cli.Execute()
}
