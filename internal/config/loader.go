package config

import (
	"fmt"

	"anomaly-detection-api/internal/db"
	"anomaly-detection-api/internal/scoring"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr       string
	CORSOrigin string
}

// StorageConfig holds the upload and results directories.
type StorageConfig struct {
	UploadDir  string
	ResultsDir string
}

// Config aggregates every runtime setting of the service.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Storage  StorageConfig
	Model    scoring.Config
}

// DefaultConfig returns the settings used when no file or env overrides exist.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:       ":8080",
			CORSOrigin: "http://localhost:3000",
		},
		Storage: StorageConfig{
			UploadDir:  "data/uploads",
			ResultsDir: "data/results",
		},
		Model: scoring.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath, with ADAPI_* environment overrides.
func Load(configPath string) (Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()        // allow environment overrides
	v.SetEnvPrefix("ADAPI") // map env vars like ADAPI_DATABASE.HOST

	// Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("server.cors_origin")
	v.BindEnv("storage.upload_dir")
	v.BindEnv("storage.results_dir")
	v.BindEnv("model.generator_path")
	v.BindEnv("model.discriminator_path")
	v.BindEnv("model.input_size")
	v.BindEnv("model.isize")
	v.BindEnv("model.nz")
	v.BindEnv("model.ngf")
	v.BindEnv("model.extra_layers")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.cors_origin") {
		cfg.Server.CORSOrigin = v.GetString("server.cors_origin")
	}
	if v.IsSet("storage.upload_dir") {
		cfg.Storage.UploadDir = v.GetString("storage.upload_dir")
	}
	if v.IsSet("storage.results_dir") {
		cfg.Storage.ResultsDir = v.GetString("storage.results_dir")
	}
	if v.IsSet("model.generator_path") {
		cfg.Model.GeneratorPath = v.GetString("model.generator_path")
	}
	if v.IsSet("model.discriminator_path") {
		cfg.Model.DiscriminatorPath = v.GetString("model.discriminator_path")
	}
	if v.IsSet("model.input_size") {
		cfg.Model.InputSize = v.GetInt("model.input_size")
	}
	if v.IsSet("model.isize") {
		cfg.Model.ISize = v.GetInt("model.isize")
	}
	if v.IsSet("model.nz") {
		cfg.Model.NZ = v.GetInt("model.nz")
	}
	if v.IsSet("model.ngf") {
		cfg.Model.NGF = v.GetInt("model.ngf")
	}
	if v.IsSet("model.extra_layers") {
		cfg.Model.ExtraLayers = v.GetInt("model.extra_layers")
	}

	return cfg, nil
}
