package main

import (
	"os"
	"time"

	"github.com/always-cache/swsi"
	responsetransformer "github.com/always-cache/swsi/pkg/response-transformer"

	"gopkg.in/yaml.v3"
)

// Config is the YAML config file. Flags override its values.
// DB is the cache DB file name, 'memory' for an in-memory db.
type Config struct {
	Origin                string                          `yaml:"origin"`
	Host                  string                          `yaml:"host"`
	Port                  int                             `yaml:"port"`
	DB                    string                          `yaml:"db"`
	Manifest              string                          `yaml:"manifest"`
	Locales               []string                        `yaml:"locales"`
	Fallback              string                          `yaml:"fallback"`
	StripSubresourceQuery bool                            `yaml:"stripSubresourceQuery"`
	CookieHashKey         string                          `yaml:"cookieHashKey"`
	SecureCookie          bool                            `yaml:"secureCookie"`
	SweepInterval         time.Duration                   `yaml:"sweepInterval"`
	Partitions            map[string]swsi.PartitionConfig `yaml:"partitions"`
	Rules                 responsetransformer.Rules       `yaml:"rules"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
