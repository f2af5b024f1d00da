package main

import (
	cmd "github.com/cesilk/comfy-nodes/cmd/cesilk"
)

func main() {
	cmd.Execute()
}
