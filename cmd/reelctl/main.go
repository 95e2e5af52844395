// Package main is the reelscraper command line tool.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/kiranshivaraju/reelscraper/cmd/reelctl/commands"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	_ = godotenv.Load()

	commands.Execute()
}
