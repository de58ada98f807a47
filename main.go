package main

import "github.com/fmuoria/resume-parser/internal/cli"

func main() {
	cli.Execute()
}
