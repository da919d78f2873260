package server

import (
	"github.com/raysh454/hashi/internal/app"
	"github.com/raysh454/hashi/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppConfig carries the shared runtime configuration; nil means
	// app.DefaultConfig().
	AppConfig *app.Config

	// Logger is optional; nil means a stdout JSON logger.
	Logger logging.Logger
}
