package config

import (
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	FacebookConfig
	APIConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
}

type mainConfig struct {
	EnvVars
	Facebook
	API
	Storage
}

// New returns the environment backed configuration. A .env file in the
// working directory is loaded first when present; real env vars win.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}

// NewFromFile loads the given env files before returning the configuration.
func NewFromFile(filenames ...string) (Config, error) {
	if err := godotenv.Load(filenames...); err != nil {
		return nil, err
	}
	return mainConfig{}, nil
}
