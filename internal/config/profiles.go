package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
)

const (
	profileDir    = ".querybridge"
	profileFile   = "profiles"
	profileType   = "yaml"
	keyringPrefix = "querybridge"
)

// SavedProfile is one connection profile as persisted in the profiles file.
// Passwords are optional here; a missing password is looked up in the OS
// keyring at resolve time.
type SavedProfile struct {
	Name             string `mapstructure:"name" yaml:"name"`
	Engine           string `mapstructure:"engine" yaml:"engine"`
	Path             string `mapstructure:"path" yaml:"path,omitempty"`
	Host             string `mapstructure:"host" yaml:"host,omitempty"`
	Port             int    `mapstructure:"port" yaml:"port,omitempty"`
	Database         string `mapstructure:"database" yaml:"database,omitempty"`
	Username         string `mapstructure:"username" yaml:"username,omitempty"`
	Password         string `mapstructure:"password" yaml:"password,omitempty"`
	TLS              bool   `mapstructure:"tls" yaml:"tls,omitempty"`
	PoolSize         int    `mapstructure:"pool_size" yaml:"pool_size,omitempty"`
	AcquireTimeout   string `mapstructure:"acquire_timeout" yaml:"acquire_timeout,omitempty"`
	StatementTimeout string `mapstructure:"statement_timeout" yaml:"statement_timeout,omitempty"`
}

// Profiles is the persisted profile collection.
type Profiles struct {
	Connections []SavedProfile `mapstructure:"connections" yaml:"connections"`
}

// LoadProfiles reads ~/.querybridge/profiles.yaml. A missing file yields an
// empty collection, not an error.
func LoadProfiles() (*Profiles, error) {
	dir, err := profileDirPath()
	if err != nil {
		return nil, fmt.Errorf("profile dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName(profileFile)
	v.SetConfigType(profileType)
	v.AddConfigPath(dir)

	out := &Profiles{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return out, nil
		}
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	return out, nil
}

// SaveProfiles writes the collection back to the profiles file.
func SaveProfiles(p *Profiles) error {
	dir, err := profileDirPath()
	if err != nil {
		return fmt.Errorf("profile dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	v := viper.New()
	v.Set("connections", p.Connections)
	path := filepath.Join(dir, profileFile+"."+profileType)
	return v.WriteConfigAs(path)
}

// Find returns the saved profile with the given name.
func (p *Profiles) Find(name string) (SavedProfile, bool) {
	for _, c := range p.Connections {
		if c.Name == name {
			return c, true
		}
	}
	return SavedProfile{}, false
}

// Add appends or replaces a profile by name.
func (p *Profiles) Add(sp SavedProfile) {
	for i, c := range p.Connections {
		if c.Name == sp.Name {
			p.Connections[i] = sp
			return
		}
	}
	p.Connections = append(p.Connections, sp)
}

// Resolve converts a saved profile into a runtime one, pulling the password
// from the OS keyring when the file carries none.
func (sp SavedProfile) Resolve() (driver.Profile, error) {
	engine, err := parseEngine(sp.Engine)
	if err != nil {
		return driver.Profile{}, err
	}

	password := sp.Password
	if password == "" && sp.Username != "" {
		stored, err := keyring.Get(keyringPrefix, sp.Name)
		if err == nil {
			password = stored
		} else if err != keyring.ErrNotFound {
			return driver.Profile{}, fmt.Errorf("keyring lookup for %q: %w", sp.Name, err)
		}
	}

	out := driver.Profile{
		Name:     sp.Name,
		Engine:   engine,
		Path:     sp.Path,
		Host:     sp.Host,
		Port:     sp.Port,
		Database: sp.Database,
		Username: sp.Username,
		Password: password,
		TLS:      sp.TLS,
		PoolSize: sp.PoolSize,
	}
	if out.AcquireTimeout, err = parseOptionalDuration(sp.AcquireTimeout); err != nil {
		return driver.Profile{}, fmt.Errorf("profile %q acquire_timeout: %w", sp.Name, err)
	}
	if out.StatementTimeout, err = parseOptionalDuration(sp.StatementTimeout); err != nil {
		return driver.Profile{}, fmt.Errorf("profile %q statement_timeout: %w", sp.Name, err)
	}
	return out, nil
}

// StorePassword saves a profile's password in the OS keyring.
func StorePassword(profileName, password string) error {
	return keyring.Set(keyringPrefix, profileName, password)
}

// DeletePassword removes a profile's password from the OS keyring.
func DeletePassword(profileName string) error {
	err := keyring.Delete(keyringPrefix, profileName)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

func parseEngine(s string) (dberr.Engine, error) {
	switch s {
	case string(dberr.EngineDuckDB):
		return dberr.EngineDuckDB, nil
	case string(dberr.EngineClickHouse):
		return dberr.EngineClickHouse, nil
	case string(dberr.EngineSQLite):
		return dberr.EngineSQLite, nil
	case string(dberr.EnginePostgres):
		return dberr.EnginePostgres, nil
	case string(dberr.EngineMySQL):
		return dberr.EngineMySQL, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func profileDirPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, profileDir), nil
}
