package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kjk/pckstore/loaders"
	"github.com/kjk/pckstore/log"
	"gopkg.in/yaml.v3"
)

// Config is read from a yaml file given with --config:
//
//	log_level: debug
//	log_dir: /var/log/pckstore
//	sort_keys: true
//	cache: true
//	sftp:
//	  key_path: ~/.ssh/id_ed25519
//	s3:
//	  endpoint: s3.amazonaws.com
//	  access: ...
//	  secret: ...
type Config struct {
	LogLevel string `yaml:"log_level,omitempty"`
	// LogDir enables logging to daily files in that directory
	LogDir   string   `yaml:"log_dir,omitempty"`
	SortKeys bool     `yaml:"sort_keys,omitempty"`
	Cache    bool     `yaml:"cache,omitempty"`
	Sftp     SftpConf `yaml:"sftp,omitempty"`
	S3       S3Conf   `yaml:"s3,omitempty"`
}

type SftpConf struct {
	Password        string `yaml:"password,omitempty"`
	KeyPath         string `yaml:"key_path,omitempty"`
	KeyPassphrase   string `yaml:"key_passphrase,omitempty"`
	InsecureHostKey bool   `yaml:"insecure_host_key,omitempty"`
}

type S3Conf struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Access   string `yaml:"access,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// loadConfig reads config from path. Empty path means default config.
func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(d, c); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	if _, err = log.ParseLevel(c.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", path, err)
	}
	return c, nil
}

func (c *Config) rawOptions(logger *slog.Logger) *loaders.RawOptions {
	opts := &loaders.RawOptions{
		Logger: logger,
		Sftp: &loaders.SftpConfig{
			Password:        c.Sftp.Password,
			KeyPath:         c.Sftp.KeyPath,
			KeyPassphrase:   c.Sftp.KeyPassphrase,
			InsecureHostKey: c.Sftp.InsecureHostKey,
		},
	}
	if c.S3.Endpoint != "" {
		opts.S3 = &loaders.S3Config{
			Endpoint: c.S3.Endpoint,
			Access:   c.S3.Access,
			Secret:   c.S3.Secret,
			Region:   c.S3.Region,
			Secure:   !c.S3.Insecure,
		}
	}
	return opts
}
