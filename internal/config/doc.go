// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// which keeps secrets such as server.auth_token and database.password out of the file.
// See configs/enhancer.example.yaml for the full schema.
package config
