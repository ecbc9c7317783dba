package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wiresaver/backend/internal/flagx"
	"github.com/wiresaver/backend/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "4h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP        string           `json:"endpoint_addr_http"`
	DatabaseDSN             string           `json:"database_dsn"`
	SecretKey               string           `json:"secret_key"`
	SessionValidityDuration timex.Duration   `json:"session_validity_duration"`
	TokenRotationAge        timex.Duration   `json:"token_rotation_age"`
	SessionSweepInterval    timex.Duration   `json:"session_sweep_interval"`
	SignupSecretPhrase      string           `json:"signup_secret_phrase"`
	TOTPIssuer              string           `json:"totp_issuer"`
	LegacyAdminUsername     string           `json:"legacy_admin_username"`
	BootstrapAdmins         []BootstrapAdmin `json:"bootstrap_admins"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.SessionValidityDuration.Duration != 0 {
		config.SessionValidityDuration = time.Duration(c.SessionValidityDuration.Duration)
	}
	if c.TokenRotationAge.Duration != 0 {
		config.TokenRotationAge = time.Duration(c.TokenRotationAge.Duration)
	}
	if c.SessionSweepInterval.Duration != 0 {
		config.SessionSweepInterval = time.Duration(c.SessionSweepInterval.Duration)
	}
	if c.SignupSecretPhrase != "" {
		config.SignupSecretPhrase = c.SignupSecretPhrase
	}
	if c.TOTPIssuer != "" {
		config.TOTPIssuer = c.TOTPIssuer
	}
	if c.LegacyAdminUsername != "" {
		config.LegacyAdminUsername = c.LegacyAdminUsername
	}
	if len(c.BootstrapAdmins) > 0 {
		config.BootstrapAdmins = c.BootstrapAdmins
	}
}
