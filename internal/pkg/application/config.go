package application

import (
	"io"

	"github.com/diwise/threshold-alerts/internal/pkg/application/events"
	"github.com/diwise/threshold-alerts/internal/pkg/application/thresholds"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	DeletePolicy  string                  `yaml:"deletePolicy"`
	Thresholds    []thresholds.SeedConfig `yaml:"thresholds"`
	Notifications []events.Notification   `yaml:"notifications"`
}

func (c *Config) Events() *events.Config {
	if c == nil {
		return nil
	}
	return &events.Config{Notifications: c.Notifications}
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err == nil {
		return &cfg, nil
	} else {
		return nil, err
	}
}
