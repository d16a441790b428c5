package utils

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nexuspay/payd/pkg/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var HomeDir string

func init() {
	var err error
	HomeDir, err = os.UserHomeDir()
	if err != nil {
		log.Fatal("failed to get $HOME value")
	}
}

func DefaultPaydDirectory() string {
	return filepath.Join(HomeDir, ".payd")
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir, ".payd", "config.json")
}

func DefaultStorePath() string {
	return filepath.Join(HomeDir, ".payd", "data.db")
}

type Config struct {
	DB           string
	RedisURL     string
	Upstream     string
	AuthKey      string
	JWTSecret    string
	KafkaBrokers []string
	KafkaTopic   string
	Sentry       string
	Port         string
}

func LoadConfig(path string) (Config, error) {
	config := Config{}
	configFile, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(configFile, &config); err != nil {
			return config, err
		}
	}

	if config.Port == "" {
		config.Port = ":3000"
	}
	if config.RedisURL == "" {
		config.RedisURL = "redis://localhost:6379"
	}
	if config.KafkaTopic == "" {
		config.KafkaTopic = "payd.settlements"
	}
	if config.Upstream == "" {
		return config, errors.New("config is missing the upstream execution network url")
	}
	if config.AuthKey == "" {
		return config, errors.New("config is missing the execution network auth key")
	}
	if config.JWTSecret == "" {
		return config, errors.New("config is missing the jwt secret")
	}
	return config, nil
}

func LoadDB(dbDialector string) (store.Store, error) {
	if dbDialector == "" {
		if err := os.MkdirAll(DefaultPaydDirectory(), 0755); err != nil {
			return nil, err
		}
		dbDialector = DefaultStorePath()
	}
	db, err := gorm.Open(sqlite.Open(dbDialector), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	return store.NewStore(db)
}
