package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/opsgrid/internal/config"
)

// loadConfig applies the env file (overwriting existing variables) and
// loads the validated configuration.
func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		switch err := godotenv.Overload(envFile); {
		case err == nil:
			slog.Info("loaded env file (overwriting existing env vars)", "file", envFile)
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("no env file found, using environment variables", "file", envFile)
		default:
			return nil, err
		}
	}
	return config.Load()
}
