package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("config webserver.port listening port can not be 0")

	// ErrEmptyAuthority error if config auth.authority is empty.
	ErrEmptyAuthority = errors.New("config auth.authority can not be empty")

	// ErrEmptyClientID error if config auth.clientid is empty.
	ErrEmptyClientID = errors.New("config auth.clientid can not be empty")

	// ErrUnknownDumpFormat is returned by Dump for formats other than toml, json and yaml.
	ErrUnknownDumpFormat = errors.New("unknown config dump format")
)
