package pipeline

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the unified service configuration.
type Config struct {
	HTTP struct {
		Port        int `yaml:"port"`
		MaxUploadMB int `yaml:"max_upload_mb"`
	} `yaml:"http"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Lookup struct {
		OverpassURL    string  `yaml:"overpass_url"`
		NominatimURL   string  `yaml:"nominatim_url"`
		UserAgent      string  `yaml:"user_agent"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		MaxFeatures    int     `yaml:"max_features"`
		MaxBBoxArea    float64 `yaml:"max_bbox_area"`
	} `yaml:"lookup"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Topic    string `yaml:"topic"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"mqtt"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.MaxUploadMB = 20
	c.Lookup.OverpassURL = "https://overpass-api.de/api/interpreter"
	c.Lookup.NominatimURL = "https://nominatim.openstreetmap.org"
	c.Lookup.UserAgent = defaultUserAgent
	c.Lookup.TimeoutSeconds = 10
	c.Lookup.MaxFeatures = defaultMaxLookupFeatures
	c.Lookup.MaxBBoxArea = defaultMaxLookupArea
	c.MQTT.ClientID = "geodataviz"
	c.MQTT.Topic = "geodataviz/results"
	c.Logging.Level = "info"
	return &c
}

// LoadConfig loads the configuration from a YAML file, applies environment
// overrides, and validates it.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv lets deployment environments override file settings. Variables
// win over the file, matching how the database URL is usually injected.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("OVERPASS_URL"); v != "" {
		c.Lookup.OverpassURL = v
	}
	if v := os.Getenv("NOMINATIM_URL"); v != "" {
		c.Lookup.NominatimURL = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	if c.HTTP.MaxUploadMB <= 0 {
		return fmt.Errorf("http.max_upload_mb must be positive")
	}
	if c.Lookup.TimeoutSeconds <= 0 {
		return fmt.Errorf("lookup.timeout_seconds must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
