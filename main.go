package main

import (
	"mediavault/cmd"
)

func main() {
	cmd.Execute()
}
