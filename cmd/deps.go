package cmd

import (
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/messaging"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/openai"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/adapter/outbound/repository"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/config"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupDatabaseConnection initializes the connection pool from configuration.
func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
	}

	return repository.NewDatabaseConnection(dbConfig)
}

// newInferenceClient builds the OpenAI batch client from configuration.
func newInferenceClient(cfg *config.Config) (outbound.BatchInferenceClient, error) {
	return openai.NewClient(openai.ClientConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	})
}

// newEventPublisher builds the NATS publisher, or a no-op one when event
// publishing is disabled.
func newEventPublisher(cfg *config.Config) outbound.EventPublisher {
	if !cfg.NATS.Enabled {
		return messaging.NoopEventPublisher{}
	}

	publisher, err := messaging.NewNATSEventPublisher(cfg.NATS)
	if err != nil {
		slogger.WarnNoCtx("NATS unavailable, lifecycle events disabled", slogger.Fields{
			"error": err.Error(),
		})
		return messaging.NoopEventPublisher{}
	}
	return publisher
}
