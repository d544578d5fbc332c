package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig carries the optional runtime tuning parameters loaded
// from a JSON file (-tuning flag). All fields are pointers so a partial
// file only overrides what it names; the Get* accessors supply defaults
// for everything else.
type TuningConfig struct {
	// Pipeline params
	RateWindow       *int    `json:"rate_window,omitempty"`
	MaxDatagramBytes *int    `json:"max_datagram_bytes,omitempty"`
	Label            *string `json:"label,omitempty"`

	// Transport params
	Destination *string `json:"destination,omitempty"`
	SendTimeout *string `json:"send_timeout,omitempty"` // duration string like "1ms"

	// Service connection params
	ServiceURL       *string `json:"service_url,omitempty"`
	ReconnectBackoff *string `json:"reconnect_backoff,omitempty"` // duration string like "2s"

	// Monitoring params
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "5s"
	HistorySize   *int    `json:"history_size,omitempty"`

	// Recording params
	ChunkRecords *int `json:"chunk_records,omitempty"`
	RecordQueue  *int `json:"record_queue,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/*
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.RateWindow != nil {
		if *c.RateWindow < 1 {
			return fmt.Errorf("rate_window must be at least 1, got %d", *c.RateWindow)
		}
	}

	if c.MaxDatagramBytes != nil {
		if *c.MaxDatagramBytes < 1 || *c.MaxDatagramBytes > 65507 {
			return fmt.Errorf("max_datagram_bytes must be between 1 and 65507, got %d", *c.MaxDatagramBytes)
		}
	}

	if c.Label != nil && *c.Label == "" {
		return fmt.Errorf("label must not be empty when set")
	}

	// Validate SendTimeout can be parsed if set
	if c.SendTimeout != nil && *c.SendTimeout != "" {
		if _, err := time.ParseDuration(*c.SendTimeout); err != nil {
			return fmt.Errorf("invalid send_timeout '%s': %w", *c.SendTimeout, err)
		}
	}

	// Validate ReconnectBackoff can be parsed if set
	if c.ReconnectBackoff != nil && *c.ReconnectBackoff != "" {
		if _, err := time.ParseDuration(*c.ReconnectBackoff); err != nil {
			return fmt.Errorf("invalid reconnect_backoff '%s': %w", *c.ReconnectBackoff, err)
		}
	}

	// Validate StatsInterval can be parsed if set
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	if c.HistorySize != nil {
		if *c.HistorySize < 1 {
			return fmt.Errorf("history_size must be at least 1, got %d", *c.HistorySize)
		}
	}

	if c.ChunkRecords != nil {
		if *c.ChunkRecords < 1 {
			return fmt.Errorf("chunk_records must be at least 1, got %d", *c.ChunkRecords)
		}
	}

	if c.RecordQueue != nil {
		if *c.RecordQueue < 1 {
			return fmt.Errorf("record_queue must be at least 1, got %d", *c.RecordQueue)
		}
	}

	return nil
}

// GetRateWindow returns the rate_window value or the default.
func (c *TuningConfig) GetRateWindow() int {
	if c.RateWindow == nil {
		return 30 // default
	}
	return *c.RateWindow
}

// GetMaxDatagramBytes returns the max_datagram_bytes value or the default.
func (c *TuningConfig) GetMaxDatagramBytes() int {
	if c.MaxDatagramBytes == nil {
		return 65507 // max UDP payload
	}
	return *c.MaxDatagramBytes
}

// GetLabel returns the label value or the default.
func (c *TuningConfig) GetLabel() string {
	if c.Label == nil {
		return "/tracking/event"
	}
	return *c.Label
}

// GetDestination returns the destination value or the default.
func (c *TuningConfig) GetDestination() string {
	if c.Destination == nil || *c.Destination == "" {
		return "127.0.0.1:5005"
	}
	return *c.Destination
}

// GetSendTimeout parses and returns the SendTimeout as a time.Duration.
func (c *TuningConfig) GetSendTimeout() time.Duration {
	if c.SendTimeout == nil || *c.SendTimeout == "" {
		return time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SendTimeout)
	if err != nil {
		return time.Millisecond // default on parse error
	}
	return d
}

// GetServiceURL returns the service_url value or the default.
func (c *TuningConfig) GetServiceURL() string {
	if c.ServiceURL == nil || *c.ServiceURL == "" {
		return "ws://127.0.0.1:6437/v1/events"
	}
	return *c.ServiceURL
}

// GetReconnectBackoff parses and returns the ReconnectBackoff as a time.Duration.
func (c *TuningConfig) GetReconnectBackoff() time.Duration {
	if c.ReconnectBackoff == nil || *c.ReconnectBackoff == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ReconnectBackoff)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 360 // half an hour at one sample per 5s interval
	}
	return *c.HistorySize
}

// GetChunkRecords returns the chunk_records value or the default.
func (c *TuningConfig) GetChunkRecords() int {
	if c.ChunkRecords == nil {
		return 1000
	}
	return *c.ChunkRecords
}

// GetRecordQueue returns the record_queue value or the default.
func (c *TuningConfig) GetRecordQueue() int {
	if c.RecordQueue == nil {
		return 256
	}
	return *c.RecordQueue
}
