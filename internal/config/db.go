package config

// DB holds the database configuration settings.
type DB struct {
	Extras     string
	Host       string
	Port       int
	User       string
	Password   string `json:"-" toml:"-" yaml:"-"`
	Name       string
	GormEngine string `validate:"omitempty,oneof=sqlite mysql postgres"`
	Path       string // sqlite database file
}
