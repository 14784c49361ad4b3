package main

import "github.com/chattersphere/chattersphere/internal/server"

func main() {
	s := server.New()
	s.Start()
}
