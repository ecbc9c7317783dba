package config

import (
	"flag"
	"os"
	"time"

	"github.com/wiresaver/backend/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session validity, minutes
//	-r int      token rotation age, minutes
//	-w int      session sweep interval, minutes
//	-p string   admin signup secret phrase
//	-i string   TOTP issuer label
//	-l string   legacy admin username to remove at bootstrap
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
//   - The bootstrap admin list has no flag form; it is JSON-only.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-w", "-p", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session_validity_duration (in minutes)")
	rotationAge := fs.Int("r", int(config.TokenRotationAge.Minutes()), "token_rotation_age (in minutes)")
	sweepInterval := fs.Int("w", int(config.SessionSweepInterval.Minutes()), "session_sweep_interval (in minutes)")

	fs.StringVar(&config.SignupSecretPhrase, "p", config.SignupSecretPhrase, "admin signup secret phrase")
	fs.StringVar(&config.TOTPIssuer, "i", config.TOTPIssuer, "TOTP issuer label")
	fs.StringVar(&config.LegacyAdminUsername, "l", config.LegacyAdminUsername, "legacy admin username removed at bootstrap")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.TokenRotationAge = time.Duration(*rotationAge) * time.Minute
	config.SessionSweepInterval = time.Duration(*sweepInterval) * time.Minute
}
