package main

import "chat-sync-engine/cmd"

func main() {
	cmd.Run()
}
