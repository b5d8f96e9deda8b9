package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "icebreaker-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "icebreaker")
}

func defaultStagingDir() string {
	return filepath.Join(os.TempDir(), "icebreaker-staging")
}

func configFilePath() string {
	if p := os.Getenv("ICEBREAKER_CONFIG_FILE"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "icebreaker.json")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "icebreaker", "config.json")
}

// keyStore holds persisted config keys. Environment variables take
// precedence over anything stored here.
type keyStore interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	GetDuration(key string) (val time.Duration, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	SetDuration(key string, val time.Duration) error
}

// fileBackend keeps config in one JSON object. Values stay raw until read so
// each key is decoded with the type its reader asks for. Durations are
// stored in time.Duration string form ("12s").
type fileBackend struct {
	path   string
	values map[string]json.RawMessage
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: make(map[string]json.RawMessage)}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
	default:
		if err := json.Unmarshal(data, &b.values); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
			b.values = make(map[string]json.RawMessage)
		}
	}
	return b
}

// decode unmarshals key into dst. When the stored JSON has a different
// shape, the string form is handed to fromString instead.
func (b *fileBackend) decode(key string, dst any, fromString func(string) error) (bool, error) {
	raw, ok := b.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || fromString == nil {
		return true, fmt.Errorf("%s: unexpected value %s", key, raw)
	}
	if err := fromString(s); err != nil {
		return true, fmt.Errorf("%s: %w", key, err)
	}
	return true, nil
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	var s string
	ok, err := b.decode(key, &s, nil)
	if err != nil {
		// Scalars written by hand (numbers, booleans) still read as text.
		return string(b.values[key]), true, nil
	}
	return s, ok, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	var n int
	ok, err := b.decode(key, &n, func(s string) (err error) {
		n, err = strconv.Atoi(s)
		return err
	})
	return n, ok, err
}

func (b *fileBackend) GetBool(key string) (bool, bool, error) {
	var v bool
	ok, err := b.decode(key, &v, func(s string) (err error) {
		v, err = strconv.ParseBool(s)
		return err
	})
	return v, ok, err
}

func (b *fileBackend) GetDuration(key string) (time.Duration, bool, error) {
	var s string
	ok, err := b.decode(key, &s, nil)
	if !ok || err != nil {
		return 0, ok, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

func (b *fileBackend) SetString(key, val string) error        { return b.set(key, val) }
func (b *fileBackend) SetInt(key string, val int) error       { return b.set(key, val) }
func (b *fileBackend) SetBool(key string, val bool) error     { return b.set(key, val) }
func (b *fileBackend) SetDuration(key string, val time.Duration) error {
	return b.set(key, val.String())
}

func (b *fileBackend) set(key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	b.values[key] = raw
	return b.save()
}

// save replaces the config file atomically.
func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}
