package main

import (
	"log"

	"video2article/internal/cli"
	"video2article/internal/config"
)

// main opens the desktop window; cmd/video2article is the full CLI.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load environment: %v", err)
	}

	if err := cli.RunDesktop(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
