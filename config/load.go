package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/opsplug/secret"
)

// Load reads, expands, decodes, resolves and validates the file at path.
func Load(ctx context.Context, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(ctx, data, secret.NewRegistry())
}

// Parse is Load for an in-memory document. Providers named under secrets
// are created from reg.
func Parse(ctx context.Context, data []byte, reg *secret.Registry) (Config, error) {
	expanded, err := secret.ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, ErrEmptyDocument
		}
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.resolveSecrets(ctx, reg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// secretFields lists every credential that may hold a secret reference.
func (c *Config) secretFields() []*string {
	fields := []*string{&c.Auth.JWT.Secret, &c.Auth.StaticToken}
	for i := range c.QueueMetrics.Redis {
		fields = append(fields, &c.QueueMetrics.Redis[i].Username, &c.QueueMetrics.Redis[i].Password)
	}
	return fields
}

func (c *Config) resolveSecrets(ctx context.Context, reg *secret.Registry) error {
	providers := make([]secret.Provider, 0, len(c.Secrets.Providers))
	for name, pcfg := range c.Secrets.Providers {
		p, err := reg.Create(name, pcfg)
		if err != nil {
			return fmt.Errorf("%w: secrets.providers.%s: %w", ErrInvalidConfig, name, err)
		}
		providers = append(providers, p)
	}

	resolver := secret.NewResolver(*c.Secrets.Strict, providers...)
	defer resolver.Close()

	if err := resolver.ResolveAll(ctx, c.secretFields()...); err != nil {
		return fmt.Errorf("config: resolve secrets: %w", err)
	}
	return nil
}
