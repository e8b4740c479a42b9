package main

import (
	"flag"
	"log"

	"AstroSense/internal/di"
	"AstroSense/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app init failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("app run failed: %v", err)
	}
}
