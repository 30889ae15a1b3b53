// Package config handles loading and validating daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CASETA_* pattern)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.Host)
package config
