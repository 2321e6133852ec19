// Package config reads the daemon's settings from the environment and
// applies an optional JSON override document on top.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"pinshadow/interfaces"
	"pinshadow/util"
	"pinshadow/util/env"
)

const (
	DefaultFamily     = "wpc"
	DefaultFramDriver = "mock"
	DefaultTick       = 10 * time.Millisecond
	DefaultListenHost = "127.0.0.1"
	DefaultListenPort = 27640
	DefaultNTPHost    = "pool.ntp.org"
)

type Config struct {
	Family     string        `json:"family"`
	FramDriver string        `json:"framDriver"`
	FramPort   string        `json:"framPort"`
	Tick       time.Duration `json:"tick"`
	ListenHost string        `json:"listenHost"`
	ListenPort int           `json:"listenPort"`
	NTPHost    string        `json:"ntpHost"`
	NTPDisable bool          `json:"ntpDisable"`
	Script     string        `json:"script"`
	Offline    bool          `json:"offline"`

	// Path of the JSON override document, if any.
	Path string `json:"-"`
}

func FromEnv() *Config {
	return &Config{
		Family:     env.GetOrDefault("PINSHADOW_FAMILY", DefaultFamily),
		FramDriver: env.GetOrDefault("PINSHADOW_FRAM_DRIVER", DefaultFramDriver),
		FramPort:   env.GetOrDefault("PINSHADOW_FRAM_PORT", ""),
		Tick:       env.DurationOrDefault("PINSHADOW_TICK", DefaultTick),
		ListenHost: env.GetOrDefault("PINSHADOW_LISTEN_HOST", DefaultListenHost),
		ListenPort: env.IntOrDefault("PINSHADOW_LISTEN_PORT", DefaultListenPort),
		NTPHost:    env.GetOrDefault("PINSHADOW_NTP_HOST", DefaultNTPHost),
		NTPDisable: util.IsTruthy(os.Getenv("PINSHADOW_NTP_DISABLE")),
		Script:     env.GetOrDefault("PINSHADOW_SCRIPT", ""),
		Offline:    util.IsTruthy(os.Getenv("PINSHADOW_OFFLINE")),
		Path:       env.GetOrDefault("PINSHADOW_CONFIG", ""),
	}
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

func (c *Config) NTPHosts() []string {
	if c.NTPDisable || c.NTPHost == "" {
		return nil
	}
	return []string{c.NTPHost}
}

func (c *Config) ConfigurationKey() string { return "daemon" }

func (c *Config) ConfigurationModel() interface{} { return c }

// LoadConfiguration takes tick as a duration string ("20ms").
func (c *Config) LoadConfiguration(config json.RawMessage) error {
	type plain Config
	next := *c
	aux := struct {
		*plain
		Tick string `json:"tick"`
	}{plain: (*plain)(&next)}
	if err := json.Unmarshal(config, &aux); err != nil {
		return err
	}
	if aux.Tick != "" {
		d, err := time.ParseDuration(aux.Tick)
		if err != nil {
			return err
		}
		next.Tick = d
	}
	if next.Tick <= 0 {
		return fmt.Errorf("tick %v must be positive", next.Tick)
	}
	if next.ListenPort <= 0 || next.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", next.ListenPort)
	}
	*c = next
	return nil
}

// Apply reads the JSON document at path, an object keyed by each
// Configurable's ConfigurationKey, and hands every present section to its
// owner. A missing path is not an error; a bad section is.
func Apply(path string, items ...interfaces.Configurable) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config: %s not found; using defaults\n", path)
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}

	var doc map[string]json.RawMessage
	if err = json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	for _, item := range items {
		section, ok := doc[item.ConfigurationKey()]
		if !ok {
			continue
		}
		if err = item.LoadConfiguration(section); err != nil {
			return fmt.Errorf("config: %s: %s: %w", path, item.ConfigurationKey(), err)
		}
		log.Printf("config: applied %q from %s\n", item.ConfigurationKey(), path)
	}
	return nil
}
