package main

import (
	"os"

	"github.com/vitwit/walletlink/cmd/walletlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
