package main

import (
	"embed"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	_ = godotenv.Load()

	logger, err := buildLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	app := NewApp(logger)

	err = wails.Run(&options.App{
		Title:  "EchoPilot",
		Width:  1100,
		Height: 760,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Fatal("application exited with error", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	switch os.Getenv("ECHOPILOT_DEBUG") {
	case "1", "true", "yes", "on":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
