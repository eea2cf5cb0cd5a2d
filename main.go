package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/alexander-bruun/vitrine/cmd"
)

var Version = "develop"

func main() {
	// A missing .env is fine; the environment is the primary source
	_ = godotenv.Load()

	if err := cmd.NewRootCmd(Version).Execute(); err != nil {
		os.Exit(1)
	}
}
