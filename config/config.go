// Package config reads a small, fixed set of git-config-style knobs:
// core.logallrefupdates, pack.window, repack.threads and similar scalars.
// No other package in the module reads a Config; the pack generator and
// the reference transaction engine take such values as plain parameters.
// It is not a general git-config implementation.
package config

import (
	"io"
	"strconv"
	"strings"

	"github.com/go-git/gcfg/v2"
)

// Config is a parsed set of "[section]"/"key = value" entries.
type Config struct {
	values map[string]string // "section.key" -> value
}

// Decode reads a git-config-style stream via gcfg's low-level callback
// API (the same entry point the teacher's own plumbing/format/config
// decoder uses), flattening every reported key into "section.key" ->
// value. gitcore has no use for git's nested "[section \"subsection\"]"
// grammar — its fixed scalar keys (core.logallrefupdates, pack.window,
// repack.threads, ...) never carry one — so the subsection argument the
// callback receives is accepted and discarded rather than folded into
// the key.
func Decode(r io.Reader) (*Config, error) {
	c := &Config{values: make(map[string]string)}
	cb := func(section, _ /* subsection */, key, value string, _ bool) error {
		if key == "" {
			// A bare "[section]" or "[section \"subsection\"]" header with
			// no key=value pair yet; nothing to record.
			return nil
		}
		c.values[strings.ToLower(section)+"."+strings.ToLower(key)] = value
		return nil
	}
	if err := gcfg.ReadWithCallback(r, cb); err != nil {
		return nil, err
	}
	return c, nil
}

// String returns the raw value for "section.key", or def if unset.
func (c *Config) String(key, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c.values[strings.ToLower(key)]; ok {
		return v
	}
	return def
}

// Int returns the integer value for "section.key", or def if unset or
// unparseable.
func (c *Config) Int(key string, def int) int {
	v := c.String(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the boolean value for "section.key" ("true"/"false"/"yes"/
// "no"/"1"/"0"), or def if unset or unparseable.
func (c *Config) Bool(key string, def bool) bool {
	v := strings.ToLower(c.String(key, ""))
	switch v {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return def
	}
}
