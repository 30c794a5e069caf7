// Package config loads the environment settings and job files that drive
// a migration.
package config

import (
	"errors"
	"os"
)

// Config holds settings read from environment variables (populated from
// the .env file in main.go when present).
type Config struct {
	SQLConnString   string
	MongoConnString string
	LogFile         string
	LogLevel        string
}

// LoadConfig reads the environment. Nothing is mandatory; jobs that need a
// connection string call RequireSQL or RequireMongo.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// RequireSQL returns dsn, or the environment's SQL connection string when
// dsn is empty.
func (c *Config) RequireSQL(dsn string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}
	if c.SQLConnString == "" {
		return "", errors.New("SQL_CONNECTION_STRING environment variable not set")
	}
	return c.SQLConnString, nil
}

// RequireMongo returns uri, or the environment's MongoDB connection string
// when uri is empty.
func (c *Config) RequireMongo(uri string) (string, error) {
	if uri != "" {
		return uri, nil
	}
	if c.MongoConnString == "" {
		return "", errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}
	return c.MongoConnString, nil
}
