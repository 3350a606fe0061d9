// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file next to the working directory (or one named explicitly) is loaded
// first, so vendor tokens and database passwords can stay out of the YAML.
package config
