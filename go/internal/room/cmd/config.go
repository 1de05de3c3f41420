package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the room agent configuration. Values come from an optional YAML
// file, with environment variables taking precedence over both the file and
// the built-in defaults.
type Config struct {
	Room struct {
		ID       int64  `yaml:"id"`
		UserID   int64  `yaml:"user_id"`
		UserName string `yaml:"user_name"`
	} `yaml:"room"`

	API struct {
		BaseURL   string `yaml:"base_url"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"api"`

	Feed struct {
		// Transport selects the event feed: "nats" (default) or "websocket".
		Transport    string `yaml:"transport"`
		WebSocketURL string `yaml:"websocket_url"`
	} `yaml:"feed"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Room.ID = getEnvAsInt64("ROOM_ID", config.Room.ID)
	config.Room.UserID = getEnvAsInt64("ROOM_USER_ID", config.Room.UserID)
	config.Room.UserName = getEnv("ROOM_USER_NAME", config.Room.UserName)
	config.API.BaseURL = getEnv("TICKGET_API_URL", config.API.BaseURL)
	config.API.AuthToken = getEnv("TICKGET_API_TOKEN", config.API.AuthToken)
	config.Feed.Transport = getEnv("ROOM_FEED_TRANSPORT", config.Feed.Transport)
	config.Feed.WebSocketURL = getEnv("ROOM_FEED_WS_URL", config.Feed.WebSocketURL)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Server.Port = getEnv("ROOM_AGENT_PORT", config.Server.Port)

	if config.API.BaseURL == "" {
		config.API.BaseURL = "http://localhost:8080"
	}
	if config.Feed.Transport == "" {
		config.Feed.Transport = "nats"
	}
	if config.NATS.URL == "" {
		config.NATS.URL = "nats://localhost:4222"
	}
	if config.Feed.Transport == "websocket" && config.Feed.WebSocketURL == "" {
		return nil, fmt.Errorf("websocket feed requires a URL (ROOM_FEED_WS_URL or config file)")
	}
	if config.Server.Port == "" {
		config.Server.Port = "8091"
	}

	if config.Room.ID == 0 {
		return nil, fmt.Errorf("room id is required (ROOM_ID or config file)")
	}
	if config.Room.UserID == 0 {
		return nil, fmt.Errorf("user id is required (ROOM_USER_ID or config file)")
	}
	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
