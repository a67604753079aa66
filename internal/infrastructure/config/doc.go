// Package config loads and queries HSM Core configuration.
//
// This package manages:
//   - Locating a YAML file from an ordered list of search paths
//   - Selecting an environment-specific override section at load time
//   - Recursive merging of configuration trees
//   - Dotted-path queries that never fail on a missing key
//   - Typed settings with defaults, environment overrides and validation
//   - Hot reload when the file changes on disk
//
// The tree is a tagged variant: every node is either a Mapping or a Scalar.
// Merging recurses only when both sides of a key are mappings; in every
// other case the override replaces the default outright.
//
// Usage:
//
//	reg, err := config.Load([]string{"./hsm.yaml", "/etc/hsm-core/hsm.yaml"}, "HSMCORE_ENV")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	datefmt := reg.Query("logging", "datefmt")
//
//	cfg, err := reg.Config()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Archive.Binary)
//
// Security Considerations:
//   - Credentials (MQTT password, InfluxDB token) should come from environment variables
//   - The config file should have restricted permissions (0600)
package config
