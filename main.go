package main

import (
	"github.com/stelligent/cumulogenesis/cmd"
)

func main() {
	cmd.Execute()
}
