package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnginePostgres     = "postgres"
	EngineSqlite       = "sqlite"
	EngineSqliteMemory = "sqlite_memory"
)

// Load reads the yaml config file and binds VOLQUERY_* environment variable
// overrides, e.g. VOLQUERY_DB_MODE for db.mode.
func Load(path string) error {
	viper.SetEnvPrefix("VOLQUERY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && strings.Contains(err.Error(), notFound.Error()) {
			// run entirely on defaults and environment overrides
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "INFO")
	viper.SetDefault("logFormat", "tint")
	viper.SetDefault("api.address", "localhost:9090")
	viper.SetDefault("db.mode", EngineSqlite)
	viper.SetDefault("dataFolder", "data")
	viper.SetDefault("ledger.requestTimeout", 5*time.Second)
	viper.SetDefault("ingest.fetchBatchSize", 32)
	viper.SetDefault("ingest.fetchInterval", 5*time.Second)
	viper.SetDefault("ingest.ingestInterval", 5*time.Second)
	viper.SetDefault("ingest.statsInterval", 60*time.Second)
}

func GetString(settingName string) (string, error) {
	setting := viper.GetString(settingName)
	if setting == "" {
		return "", fmt.Errorf("setting %s not found", settingName)
	}

	return setting, nil
}

func GetInt(settingName string) (int, error) {
	setting := viper.GetInt(settingName)
	if setting == 0 {
		return 0, fmt.Errorf("setting %s not found", settingName)
	}

	return setting, nil
}

func GetDuration(settingName string) (time.Duration, error) {
	setting := viper.GetDuration(settingName)
	if setting == 0 {
		return 0, fmt.Errorf("setting %s not found", settingName)
	}

	return setting, nil
}

// GetDBMode validates the configured store engine.
func GetDBMode() (string, error) {
	mode, err := GetString("db.mode")
	if err != nil {
		return "", err
	}

	switch mode {
	case EnginePostgres, EngineSqlite, EngineSqliteMemory:
		return mode, nil
	}

	return "", fmt.Errorf("unknown db.mode: %s", mode)
}
