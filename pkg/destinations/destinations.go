package destinations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the sink family a destination belongs to.
type Kind string

// Supported destination kinds.
const (
	KindSQS     Kind = "sqs"
	KindSNS     Kind = "sns"
	KindWebhook Kind = "webhook"
)

// SupportedVersion is the highest config schema version this build understands.
const SupportedVersion = 1

// Environment variables consulted before any file source. The full-config
// variable holds a complete JSON document; the per-collection variables hold
// JSON arrays of destination entries.
const (
	EnvConfig   = "S3_FORWARDER_CONFIG"
	EnvQueues   = "S3_FORWARDER_SQS_QUEUES"
	EnvTopics   = "S3_FORWARDER_SNS_TOPICS"
	EnvWebhooks = "S3_FORWARDER_WEBHOOKS"
)

// defaultFilePaths are tried, in order, when no explicit path is configured
// or the configured file does not exist.
var defaultFilePaths = []string{
	"/tmp/s3-forwarder-config.json",
	"./config.json",
	"./s3-forwarder-config.json",
}

// Destination is one configured forwarding target in canonical form: the
// enabled flag is resolved (absent means enabled) and the address is the
// kind-appropriate one (queue URL, topic ARN, webhook URL).
type Destination struct {
	Name        string
	Kind        Kind
	Address     string
	Enabled     bool
	Description string
}

// Config is a loaded destination configuration generation. It is always
// structurally valid: every kind collection is non-nil, and anomalies met
// while loading are recorded in Warnings instead of failing the load.
type Config struct {
	Version  int
	Queues   []Destination
	Topics   []Destination
	Webhooks []Destination

	// Source names the precedence level the configuration came from.
	Source   string
	Warnings []string
}

// destEntry is the wire form of a destination in config files and
// environment variables. Both layouts decode into it: split collections
// ignore Type, the unified destinations list requires it.
type destEntry struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	URL         string `json:"url" yaml:"url"`
	ARN         string `json:"arn" yaml:"arn"`
	Enabled     *bool  `json:"enabled" yaml:"enabled"`
	Description string `json:"description" yaml:"description"`
}

// rawConfig is the tolerant top-level document shape. Collections decode
// through rawEntryList so a malformed collection degrades instead of failing
// the document.
type rawConfig struct {
	Version      any          `json:"version" yaml:"version"`
	SQSQueues    rawEntryList `json:"sqs_queues" yaml:"sqs_queues"`
	SNSTopics    rawEntryList `json:"sns_topics" yaml:"sns_topics"`
	Webhooks     rawEntryList `json:"webhooks" yaml:"webhooks"`
	Destinations rawEntryList `json:"destinations" yaml:"destinations"`
}

// rawEntryList decodes a collection of destination entries, tolerating a
// non-list value (invalid) and skipping entries that are not objects
// (dropped). The surrounding document decode never fails because of it.
type rawEntryList struct {
	entries []destEntry
	invalid bool
	dropped int
}

func (l *rawEntryList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		l.invalid = true
		return nil
	}
	for _, item := range items {
		var e destEntry
		if err := json.Unmarshal(item, &e); err != nil {
			l.dropped++
			continue
		}
		l.entries = append(l.entries, e)
	}
	return nil
}

func (l *rawEntryList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		l.invalid = true
		return nil
	}
	for _, node := range value.Content {
		var e destEntry
		if err := node.Decode(&e); err != nil {
			l.dropped++
			continue
		}
		l.entries = append(l.entries, e)
	}
	return nil
}

// Load resolves the destination configuration: environment variables first,
// then the explicit file path and well-known fallback paths, then the
// compiled-in default. The winning source is used entirely; lower-precedence
// sources are never merged in. A source that is present but unparseable at
// the top level is a fatal error.
func Load(path string) (*Config, error) {
	cfg, err := loadFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg, err = loadFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	return defaultConfig(), nil
}

// loadFromEnv returns (nil, nil) when no destination environment variables
// are set.
func loadFromEnv() (*Config, error) {
	if raw := strings.TrimSpace(os.Getenv(EnvConfig)); raw != "" {
		cfg, err := parseDocument([]byte(raw), ".json")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfig, err)
		}
		cfg.Source = "env:" + EnvConfig
		return cfg, nil
	}

	collections := []struct {
		env  string
		kind Kind
	}{
		{EnvQueues, KindSQS},
		{EnvTopics, KindSNS},
		{EnvWebhooks, KindWebhook},
	}

	var raw rawConfig
	found := false
	for _, c := range collections {
		val := strings.TrimSpace(os.Getenv(c.env))
		if val == "" {
			continue
		}
		var entries []destEntry
		if err := json.Unmarshal([]byte(val), &entries); err != nil {
			return nil, fmt.Errorf("%s: decode json: %w", c.env, err)
		}
		found = true
		switch c.kind {
		case KindSQS:
			raw.SQSQueues.entries = entries
		case KindSNS:
			raw.SNSTopics.entries = entries
		case KindWebhook:
			raw.Webhooks.entries = entries
		}
	}
	if !found {
		return nil, nil
	}

	cfg := buildConfig(raw)
	cfg.Source = "env:S3_FORWARDER_*"
	return cfg, nil
}

// loadFromFile returns (nil, nil) when none of the candidate files exist.
func loadFromFile(path string) (*Config, error) {
	candidates := make([]string, 0, len(defaultFilePaths)+1)
	if p := strings.TrimSpace(path); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, defaultFilePaths...)

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read destinations file %s: %w", p, err)
		}
		cfg, err := parseDocument(data, filepath.Ext(p))
		if err != nil {
			return nil, fmt.Errorf("destinations file %s: %w", p, err)
		}
		cfg.Source = "file:" + p
		return cfg, nil
	}
	return nil, nil
}

// parseDocument decodes a destination config document as YAML or JSON,
// chosen by extension when one is given.
func parseDocument(data []byte, ext string) (*Config, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var raw rawConfig
		if err := d.fn(data, &raw); err != nil {
			lastErr = fmt.Errorf("decode %s destinations: %w", d.name, err)
			continue
		}
		return buildConfig(raw), nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("destinations config format not recognized (expected YAML or JSON)")
}

// buildConfig converts the tolerant wire document into canonical form,
// recording a warning for every anomaly it repairs.
func buildConfig(raw rawConfig) *Config {
	cfg := &Config{
		Version:  1,
		Queues:   []Destination{},
		Topics:   []Destination{},
		Webhooks: []Destination{},
	}

	if raw.Version != nil {
		if v, ok := coerceVersion(raw.Version); ok {
			cfg.Version = v
			if v > SupportedVersion {
				cfg.warnf("config version %d is newer than supported %d", v, SupportedVersion)
			}
		} else {
			cfg.warnf("unrecognized config version marker %v; assuming %d", raw.Version, SupportedVersion)
		}
	}

	cfg.appendCollection("sqs_queues", raw.SQSQueues, KindSQS)
	cfg.appendCollection("sns_topics", raw.SNSTopics, KindSNS)
	cfg.appendCollection("webhooks", raw.Webhooks, KindWebhook)
	cfg.appendCollection("destinations", raw.Destinations, "")

	return cfg
}

// appendCollection folds one wire collection into the canonical config.
// A fixed non-empty kind pins the collection's kind; otherwise each entry's
// type field decides, and entries with an unrecognized type are dropped.
func (c *Config) appendCollection(field string, list rawEntryList, fixed Kind) {
	if list.invalid {
		c.warnf("%s is not a list; ignoring", field)
		return
	}
	if list.dropped > 0 {
		c.warnf("%s: dropped %d malformed entries", field, list.dropped)
	}

	for _, e := range list.entries {
		e.Name = strings.TrimSpace(e.Name)
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.URL = strings.TrimSpace(e.URL)
		e.ARN = strings.TrimSpace(e.ARN)
		e.Description = strings.TrimSpace(e.Description)

		kind := fixed
		if kind == "" {
			k, ok := kindForType(e.Type)
			if !ok {
				c.warnf("destination %q has unrecognized type %q; dropped", entryName(e), e.Type)
				continue
			}
			kind = k
		}
		if e.Name == "" {
			c.warnf("%s: destination with no name dropped", field)
			continue
		}

		d := Destination{
			Name:        e.Name,
			Kind:        kind,
			Address:     addressFor(kind, e),
			Enabled:     e.Enabled == nil || *e.Enabled,
			Description: e.Description,
		}
		if d.Address == "" {
			c.warnf("destination %q (%s) has no address", d.Name, d.Kind)
		}
		c.upsert(d)
	}
}

// upsert inserts the destination into its kind collection. A later entry
// with the same name replaces the earlier one in place.
func (c *Config) upsert(d Destination) {
	list := c.listFor(d.Kind)
	for i := range *list {
		if (*list)[i].Name == d.Name {
			(*list)[i] = d
			c.warnf("duplicate destination %q (%s); keeping last occurrence", d.Name, d.Kind)
			return
		}
	}
	*list = append(*list, d)
}

func (c *Config) listFor(kind Kind) *[]Destination {
	switch kind {
	case KindSNS:
		return &c.Topics
	case KindWebhook:
		return &c.Webhooks
	default:
		return &c.Queues
	}
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// All returns every loaded destination, queues first, in declaration order.
func (c *Config) All() []Destination {
	if c == nil {
		return nil
	}
	out := make([]Destination, 0, len(c.Queues)+len(c.Topics)+len(c.Webhooks))
	out = append(out, c.Queues...)
	out = append(out, c.Topics...)
	out = append(out, c.Webhooks...)
	return out
}

// Total returns the number of loaded destinations across all kinds.
func (c *Config) Total() int {
	if c == nil {
		return 0
	}
	return len(c.Queues) + len(c.Topics) + len(c.Webhooks)
}

// kindForType maps a unified-list type tag to a Kind.
func kindForType(typ string) (Kind, bool) {
	switch typ {
	case "sqs", "queue":
		return KindSQS, true
	case "sns", "topic":
		return KindSNS, true
	case "webhook", "http":
		return KindWebhook, true
	default:
		return "", false
	}
}

// addressFor resolves the kind-appropriate address from a wire entry.
func addressFor(kind Kind, e destEntry) string {
	switch kind {
	case KindSNS:
		if e.ARN != "" {
			return e.ARN
		}
		return e.URL
	case KindWebhook:
		return e.URL
	default:
		if e.URL != "" {
			return e.URL
		}
		return e.ARN
	}
}

func entryName(e destEntry) string {
	if e.Name == "" {
		return "unknown"
	}
	return e.Name
}

func coerceVersion(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// defaultConfig is the compiled-in fallback used when no other source is
// present. The addresses are placeholders that operators are expected to
// override.
func defaultConfig() *Config {
	return &Config{
		Version: 1,
		Queues: []Destination{{
			Name:    "s3-events-processing-queue",
			Kind:    KindSQS,
			Address: "https://sqs.us-east-1.amazonaws.com/123456789012/s3-events-processing-queue",
			Enabled: true,
		}},
		Topics: []Destination{{
			Name:    "s3-events-notifications",
			Kind:    KindSNS,
			Address: "arn:aws:sns:us-east-1:123456789012:s3-events-notifications",
			Enabled: true,
		}},
		Webhooks: []Destination{},
		Source:   "default",
	}
}
