package core

import (
	"fmt"
	"strings"
	"time"
)

// DedupWindow is the fixed retransmission window.
const DedupWindow = 5 * time.Second

const DefaultDedupMaxEntries = 10000

type DedupConfig struct {
	MaxEntries  int    `koanf:"max_entries" mapstructure:"max_entries"`
	Fingerprint string `koanf:"fingerprint" mapstructure:"fingerprint"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	Routing     RoutingRule `koanf:"routing" mapstructure:"routing"`
	Dedup       DedupConfig `koanf:"dedup" mapstructure:"dedup"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "hookrelay",
		Dedup: DedupConfig{
			MaxEntries:  DefaultDedupMaxEntries,
			Fingerprint: string(FingerprintPayload),
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Dedup.MaxEntries < 0 {
		return fmt.Errorf("core: dedup.max_entries must not be negative")
	}
	if strategy := strings.TrimSpace(c.Dedup.Fingerprint); strategy != "" && !FingerprintStrategy(strings.ToLower(strategy)).Valid() {
		return fmt.Errorf("core: dedup.fingerprint %q is invalid", strategy)
	}
	return nil
}
