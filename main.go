package main

import "tutorgate/internal/cli"

func main() {
	cli.Execute()
}
