package main

import "github.com/chattersphere/chattersphere/cmd/spherectl/cmd"

func main() {
	cmd.Execute()
}
