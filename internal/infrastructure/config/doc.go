// Package config handles loading and validating Que Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Cloud credentials, broker passwords and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret must be set before the HTTP API is enabled
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Poll.Interval)
package config
