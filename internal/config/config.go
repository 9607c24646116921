// Package config handles input from etc/main.toml, the environment and .env files.
package config

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigJSON holds a JSON document merged over the file configuration.
	EnvConfigJSON = "ADMINSHELL_CONFIG_JSON"

	// EnvPrefix is the viper prefix for single value overrides, e.g. ADMINSHELL_WEBSERVER_PORT.
	EnvPrefix = "ADMINSHELL"

	// AuthEnvPrefix prefixes the identity provider overrides, e.g. AUTH_CLIENT_ID.
	AuthEnvPrefix = "AUTH_"

	// DefaultScope is requested when no scope is configured.
	DefaultScope = "openid profile email"
)

// ReadConfig reads main.toml from path, then applies the JSON override, the .env file
// found in the working directory and the AUTH_ environment variables.
func ReadConfig(path string) (Config, error) {
	var (
		c   Config
		err error
	)

	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	v.SetConfigName("main")
	v.SetConfigType("toml")
	v.AddConfigPath(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err = v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	if configAsJSON := os.Getenv(EnvConfigJSON); configAsJSON != "" {
		c, err = decodeAndMergeConfig(c, configAsJSON)
		if err != nil {
			return c, err
		}
	}

	if err = loadDotEnv(".env"); err != nil {
		return c, err
	}

	if err = env.ParseWithOptions(&c.Auth, env.Options{Prefix: AuthEnvPrefix}); err != nil {
		return c, errors.Wrap(err, "failed to read auth environment")
	}

	return c, validate(&c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "AdminShell")
	v.SetDefault("webserver.port", 8080)
	v.SetDefault("webserver.shutdowntime", 5)
	v.SetDefault("webserver.session.cookiename", "session")
	v.SetDefault("webserver.session.expirytime", 12*time.Hour)
	v.SetDefault("webserver.session.idletimeout", time.Hour)
	v.SetDefault("auth.scope", DefaultScope)
	v.SetDefault("auth.automaticsilentrenew", true)
	v.SetDefault("auth.loaduserinfo", true)
	v.SetDefault("auth.revoketokensonsignout", true)
	v.SetDefault("auth.expiringnotification", time.Minute)
	v.SetDefault("auth.reinitpolicy", "ignore")
	v.SetDefault("auth.renewfailurepolicy", "relogin")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.table", "session_state")
	v.SetDefault("storage.gcinterval", 10*time.Minute)
	v.SetDefault("db.gormengine", "sqlite")
	v.SetDefault("db.path", "adminshell.db")
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read "+EnvConfigJSON)
	}

	return c, nil
}

// loadDotEnv exports the variables of a .env file that are not already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "failed to read "+path)
	}

	return nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigYAML config as YAML String.
func DumpConfigYAML(c *Config) (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err //nolint: wrapcheck
	}

	return string(out), nil
}

// Dump renders the config in the given format: toml, json or yaml.
func Dump(c *Config, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "toml":
		return DumpConfig(c)
	case "json":
		return DumpConfigJSON(c)
	case "yaml", "yml":
		return DumpConfigYAML(c)
	default:
		return "", errors.Wrap(ErrUnknownDumpFormat, format)
	}
}

// validate checks the settings the service can not start without.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Auth.Authority == "" {
		return errors.Wrap(ErrEmptyAuthority, invalidErrMessage)
	}

	if c.Auth.ClientID == "" {
		return errors.Wrap(ErrEmptyClientID, invalidErrMessage)
	}

	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if c.Auth.Scope == "" {
		c.Auth.Scope = DefaultScope
	}

	return nil
}
