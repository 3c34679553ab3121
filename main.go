package main

import (
	"log"

	"curiosity-intelligence/app"
	"curiosity-intelligence/config"
)

func main() {
	cfg := config.LoadFromEnv()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatalf("❌ Application failed: %v", err)
	}
}
