// Package config loads server startup configuration: environment
// variables win over an optional postgrustql.toml file in the data
// directory, which in turn wins over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
)

// Config is the server's full startup configuration, sourced from
// POSTGRUSTQL_{USER,PASSWORD,DATABASE,HOST,PORT,DATA_DIR,INITDB}
// environment variables, an optional <DATA_DIR>/postgrustql.toml, and
// defaults, in that order of precedence.
type Config struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DataDir  string `toml:"data_dir"`
	InitDB   bool   `toml:"initdb"`
}

// Defaults returns the built-in fallback configuration.
func Defaults() Config {
	return Config{
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
		Host:     "0.0.0.0",
		Port:     5432,
		DataDir:  "./data",
		InitDB:   true,
	}
}

// tomlFileName is the configuration file name Load looks for inside
// DataDir, once DataDir itself has been resolved from the environment or
// defaults.
const tomlFileName = "postgrustql.toml"

// Load builds a Config from defaults, an optional TOML file, and the
// environment, applying each layer's explicitly-set fields over the
// previous one (env wins).
func Load() (Config, error) {
	cfg := Defaults()

	dataDir := os.Getenv("POSTGRUSTQL_DATA_DIR")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	tomlPath := filepath.Join(dataDir, tomlFileName)
	if _, err := os.Stat(tomlPath); err == nil {
		var fileCfg Config
		if _, err := toml.DecodeFile(tomlPath, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", tomlPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("config: merge %s: %w", tomlPath, err)
		}
		// mergo treats a false bool as unset, so initdb is re-read
		// explicitly to let the file turn it off.
		var boolFields struct {
			InitDB *bool `toml:"initdb"`
		}
		if _, err := toml.DecodeFile(tomlPath, &boolFields); err == nil && boolFields.InitDB != nil {
			cfg.InitDB = *boolFields.InitDB
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: stat %s: %w", tomlPath, err)
	}

	envCfg, err := fromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, envCfg, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("config: merge environment: %w", err)
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_INITDB"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid POSTGRUSTQL_INITDB %q: %w", v, err)
		}
		cfg.InitDB = b
	}

	return cfg, nil
}

// fromEnv reads only the environment variables that were actually set,
// leaving every other field zero so mergo.WithOverride does not clobber
// an already-resolved value with an empty one.
func fromEnv() (Config, error) {
	var c Config
	if v, ok := os.LookupEnv("POSTGRUSTQL_USER"); ok {
		c.User = v
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_PASSWORD"); ok {
		c.Password = v
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_DATABASE"); ok {
		c.Database = v
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_HOST"); ok {
		c.Host = v
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid POSTGRUSTQL_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv("POSTGRUSTQL_DATA_DIR"); ok {
		c.DataDir = v
	}
	return c, nil
}

// Addr returns the host:port listen address this config describes.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
