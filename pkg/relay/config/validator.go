// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

var validAuthTypes = map[string]bool{
	string(relay.AuthNone):        true,
	string(relay.AuthAPIKey):      true,
	string(relay.AuthBearerToken): true,
	string(relay.AuthBasic):       true,
	string(relay.AuthSimple):      true,
}

// Validator checks a loaded configuration for semantic errors.
type Validator struct{}

// NewValidator creates a configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the whole configuration and reports every problem found.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", relay.ErrInvalidConfig)
	}

	var problems []string

	seen := make(map[string]bool)
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		if err := v.validateServer(s); err != nil {
			problems = append(problems, err.Error())
		}
		if s.ID != "" && seen[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate server id %q", s.ID))
		}
		seen[s.ID] = true
	}

	if cfg.SessionTTLMinutes < 0 {
		problems = append(problems, "session_ttl_minutes cannot be negative")
	}
	if cfg.CatalogTTLSeconds < 0 {
		problems = append(problems, "catalog_ttl_seconds cannot be negative")
	}
	if cfg.MaxClients < 0 {
		problems = append(problems, "max_clients cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", relay.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (*Validator) validateServer(s *ServerConfig) error {
	var problems []string

	if s.ID == "" {
		problems = append(problems, "server id is required")
	}
	if s.URL == "" {
		problems = append(problems, fmt.Sprintf("server %q has no url", s.ID))
	} else if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, fmt.Sprintf("server %q has invalid url %q", s.ID, s.URL))
	}

	if s.AuthType != "" && !validAuthTypes[s.AuthType] {
		problems = append(problems, fmt.Sprintf("server %q has unknown auth_type %q", s.ID, s.AuthType))
	}
	if s.AuthType == string(relay.AuthSimple) && (s.Username == "" || s.Secret == "") {
		problems = append(problems, fmt.Sprintf("server %q uses simple_auth but lacks username or secret", s.ID))
	}
	if s.TimeoutSeconds < 0 {
		problems = append(problems, fmt.Sprintf("server %q has negative timeout", s.ID))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
