package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StaticCode is one access code seeded at process start
type StaticCode struct {
	Code      string     `yaml:"code"`
	MaxUses   int        `yaml:"maxUses"`
	TTL       string     `yaml:"ttl,omitempty"`
	ExpiresAt *time.Time `yaml:"expiresAt,omitempty"`
}

type staticCodesFile struct {
	Codes []StaticCode `yaml:"codes"`
}

// LoadStaticCodes reads a YAML document of the form:
//
//	codes:
//	  - code: WELCOME2024
//	    maxUses: 100
//	    ttl: 720h
func LoadStaticCodes(path string) ([]StaticCode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static codes file: %w", err)
	}

	var doc staticCodesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse static codes file: %w", err)
	}

	for i, c := range doc.Codes {
		if c.Code == "" {
			return nil, fmt.Errorf("static code #%d: code is required", i+1)
		}
		if c.MaxUses < 1 {
			return nil, fmt.Errorf("static code %q: maxUses must be positive", c.Code)
		}
		if c.TTL != "" {
			if _, err := time.ParseDuration(c.TTL); err != nil {
				return nil, fmt.Errorf("static code %q: invalid ttl: %w", c.Code, err)
			}
			if c.ExpiresAt != nil {
				return nil, fmt.Errorf("static code %q: ttl and expiresAt are mutually exclusive", c.Code)
			}
		}
	}

	return doc.Codes, nil
}

// Expiry resolves the absolute expiry of a static code relative to now
func (c StaticCode) Expiry(now time.Time) *time.Time {
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		return &t
	}
	if c.TTL == "" {
		return nil
	}
	d, _ := time.ParseDuration(c.TTL)
	t := now.Add(d)
	return &t
}
