// Package app provides application initialization and dependency injection.
//
// App is the core container that wires configuration, Genkit, the
// database pool, the result cache, and the knowledge retrieval facade.
// Every entry point (CLI, HTTP API, MCP server) builds an App via Setup
// and releases it with Close.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickAIautomation/quickvetpro/internal/agent"
	"github.com/quickAIautomation/quickvetpro/internal/cache"
	"github.com/quickAIautomation/quickvetpro/internal/config"
	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config

	// Core services
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	Cache     *cache.Cache
	Store     *knowledge.Store
	Knowledge *knowledge.Service

	// Lifecycle management
	otelCleanup func()
	dbCleanup   func()
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

// CreateAgent builds the veterinary assistant agent on top of the
// knowledge facade.
func (a *App) CreateAgent() *agent.Agent {
	return agent.New(a.Config, a.Genkit, a.Knowledge, slog.Default())
}
