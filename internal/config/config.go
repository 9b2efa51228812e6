package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	koanf "github.com/knadh/koanf/v2"
)

type Elasticsearch struct {
	URL                string `koanf:"url"`
	Username           string `koanf:"username"`
	Password           string `koanf:"password"`
	InsecureSkipVerify bool   `koanf:"insecureSkipVerify"`
	TimeoutSeconds     int    `koanf:"timeoutSeconds"`
}

type Config struct {
	Elasticsearch *Elasticsearch `koanf:"elasticsearch"`

	// ResyncInterval is how often every tracked ElasticsearchUser is
	// re-evaluated even without change events.
	ResyncInterval time.Duration `koanf:"resyncInterval"`

	// CacheRecycleInterval is how often the in-memory resource registry is
	// discarded and rebuilt from a full listing.
	CacheRecycleInterval time.Duration `koanf:"cacheRecycleInterval"`

	PasswordLength int `koanf:"passwordLength"`

	ValidationWebhookTimeoutSeconds int `koanf:"validationWebhookTimeoutSeconds"`
}

var (
	DefaultConfig = Config{
		Elasticsearch: &Elasticsearch{
			URL:                "https://localhost:9200",
			Username:           "elastic",
			Password:           "changeme",
			InsecureSkipVerify: false,
			TimeoutSeconds:     5,
		},
		ResyncInterval:                  15 * time.Minute,
		CacheRecycleInterval:            20 * time.Minute,
		PasswordLength:                  24,
		ValidationWebhookTimeoutSeconds: 5,
	}
)

func GetConfig(configPath string) (*Config, error) {
	k := koanf.New(".")
	parser := yaml.Parser()
	cfg := &Config{}

	if err := k.Load(structs.Provider(DefaultConfig, "koanf"), nil); err != nil {
		return nil, err
	}

	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
