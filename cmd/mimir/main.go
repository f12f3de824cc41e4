package main

import "github.com/mimir-go/cmd/mimir/cmd"

func main() {
	cmd.Execute()
}
