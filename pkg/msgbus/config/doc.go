/*
Package config provides configuration for msgbus: the transport-options bag,
file loading, and process settings from the environment.

# Transport Options

Config wraps a map[string]any with typed accessors that return defaults on
missing keys or type mismatches. A broadcast passes one Config, unmodified,
to every transmitter it targets:

	opts := config.New(map[string]any{
	    "topic":   "orders",
	    "timeout": "5s",
	})

	topic := opts.String("topic", "default")          // "orders"
	timeout := opts.Duration("timeout", time.Second)  // 5s
	retries := opts.Int("retries", 3)                 // 3

Config values are treated as immutable; With returns a modified copy.

# File Loading

	cfg, err := config.FromFile("msgbus.yaml")
	entries, err := cfg.Transmitters() // "transmitters" list of {id, type}

# Settings

Settings are read from MSGBUS_-prefixed environment variables using
caarlos0/env, after loading optional .env files with godotenv:

	settings, err := config.LoadSettings()
	logger := settings.Logger(os.Stderr)
*/
package config
