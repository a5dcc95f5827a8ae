// Package config loads the calcompanion configuration with viper.
//
// Values come from built-in defaults, an optional YAML file, environment
// variables prefixed with CALCOMPANION_ (dots become underscores, so
// llm.api_key is CALCOMPANION_LLM_API_KEY) and command line flags.
package config
