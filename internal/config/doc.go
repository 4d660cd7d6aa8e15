// Package config loads fmrepl settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults (Default)
//  2. a configuration file, YAML (gopkg.in/yaml.v3) or JSON with comments
//     (github.com/tidwall/jsonc), chosen by file extension
//  3. a .env file in the working directory (github.com/joho/godotenv)
//     together with FMREPL_* environment variables
//  4. command-line flags, applied by the cli package
//
// Validate reports every problem at once so a broken file can be fixed in
// one pass.
package config
