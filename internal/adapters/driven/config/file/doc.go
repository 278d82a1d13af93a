// Package file provides file-based implementations of driven port interfaces.
//
// ConfigStore keeps collector settings in ~/.finexus/config.toml. Values can
// be shadowed per process from the environment (see EnvBindings), and a .env
// file is loaded with godotenv so the API key need not live in the TOML file.
package file
