package config

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file keys,
// e.g. COURIER_DATABASE_URL overrides database.url.
const EnvPrefix = "COURIER"

var ErrConfigTypeRequired = errors.New("config type is required")

// Viper implements Config. The scalar getters come straight from the
// embedded viper instance.
type Viper struct {
	*viper.Viper
}

// NewViper reads the file at path after loading an optional .env. The file is
// watched and re-read on change; a failed reload keeps the previous values.
func NewViper(path string) (*Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	v := newEnvBound()
	v.SetConfigFile(path)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config changed", "path", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()

	return &Viper{Viper: v}, nil
}

// NewViperFromBytes reads an in-memory document of the given format.
func NewViperFromBytes(configType string, data []byte) (*Viper, error) {
	if strings.TrimSpace(configType) == "" {
		return nil, ErrConfigTypeRequired
	}

	v := newEnvBound()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	return &Viper{Viper: v}, nil
}

func newEnvBound() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func (vc *Viper) scaled(key string, unit time.Duration) time.Duration {
	return time.Duration(vc.GetInt64(key)) * unit
}

func (vc *Viper) GetMillisecond(key string) time.Duration { return vc.scaled(key, time.Millisecond) }
func (vc *Viper) GetSecond(key string) time.Duration      { return vc.scaled(key, time.Second) }
func (vc *Viper) GetMinute(key string) time.Duration      { return vc.scaled(key, time.Minute) }

func (vc *Viper) GetArray(key string) []string {
	var out []string
	for _, item := range strings.Split(vc.GetString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (vc *Viper) GetMap(key string) map[string]string {
	m := make(map[string]string)
	for _, pair := range vc.GetArray(key) {
		if k, v, ok := strings.Cut(pair, ":"); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m
}

func (vc *Viper) Close() error { return nil }
