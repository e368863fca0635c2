// Package config provides configuration parsing for pagekeeper.
//
// The configuration lives in pagekeeper.json, pagekeeper.toml or
// pagekeeper.yaml at the project root. This package handles loading,
// saving, and validating it, and maps it onto registry and session
// manager settings.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "localhost",
//	    "port": 8080,
//	    "shutdownTimeout": "15s"
//	  },
//	  "registry": {
//	    "home": "/",
//	    "specialNames": ["Index", "Login", "NotFound"],
//	    "keyPolicy": "sanitized",
//	    "warnThreshold": 15
//	  },
//	  "sessions": {
//	    "maxSessions": 10000,
//	    "idleTimeout": "30m",
//	    "evictionPolicy": "lru"
//	  },
//	  "metrics": {"enabled": true, "path": "/metrics"},
//	  "tracing": {"enabled": false},
//	  "log": {"level": "info", "format": "text"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
