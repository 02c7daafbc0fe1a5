package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/exportsync/exportsync.toml
	SourceUser        ConfigSource = "user"        // ~/.exportsync/exportsync.toml
	SourceProject     ConfigSource = "project"     // nearest exportsync.toml upward
	SourceEnvironment ConfigSource = "environment" // EXPORTSYNC_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// sensitiveKeys are redacted in introspection output
var sensitiveKeys = map[string]bool{
	"ingest.token": true,
}

// Introspect lists every effective setting of v with the source that set it, sorted by key.
func Introspect(v *viper.Viper) []SettingInfo {
	keys := v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := ConfigSources[key]; ok {
			info = si
		}

		envKey := "EXPORTSYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		} else if key == "ingest.token" && os.Getenv("ADMIN_TOKEN") != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: "ADMIN_TOKEN"}
		}

		value := v.Get(key)
		if sensitiveKeys[key] {
			value = redact(v.GetString(key))
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings
}

// EffectiveSettings returns v's merged settings as a nested map with
// sensitive values redacted, for `am show`.
func EffectiveSettings(v *viper.Viper) map[string]interface{} {
	settings := v.AllSettings()
	for key := range sensitiveKeys {
		parts := strings.Split(key, ".")
		section, ok := settings[parts[0]].(map[string]interface{})
		if !ok || len(parts) != 2 {
			continue
		}
		if _, set := section[parts[1]]; set {
			section[parts[1]] = redact(v.GetString(key))
		}
	}
	return settings
}

// Redacted returns a copy of cfg safe to print.
func (c Config) Redacted() Config {
	c.Ingest.Token = redact(c.Ingest.Token)
	return c
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
