package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyInfo is one row of `icebreaker config show`. Secret values are never
// included; only whether they are set.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		ki := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret}
		switch {
		case s.secret && s.extract(cfg) != "":
			ki.Value = "(set)"
		case s.secret:
			ki.Value = "(unset)"
		default:
			ki.Value = fmt.Sprint(s.extract(cfg))
		}
		result = append(result, ki)
	}
	return result
}

// SetKey persists a non-secret key to the config file.
func SetKey(key, value string) error {
	return setKeyIn(newFileBackend(configFilePath()), key, value)
}

func setKeyIn(b keyStore, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(settableKeys(), ", "))
	}
	if s.secret {
		hint := s.env
		if s.alias != "" {
			hint += " or " + s.alias
		}
		return fmt.Errorf("%s is a secret; set it with %s", key, hint)
	}

	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects an integer: %w", key, err)
		}
		return b.SetInt(key, i)
	case kBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}
		return b.SetBool(key, v)
	case kDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s expects a duration such as 12s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
		return b.SetDuration(key, d)
	}
	return b.SetString(key, value)
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func settableKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
