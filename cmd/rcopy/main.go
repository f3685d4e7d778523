package main

import "github.com/jvs-project/rcopy/internal/cli"

func main() {
	cli.Execute()
}
