package main

import "github.com/menofreact/whatsapp-sending-engine/cmd"

func main() {
	cmd.Execute()
}
