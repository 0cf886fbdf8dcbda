// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-gapmeter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort                = 8080
	DefaultSamplerIntervalMs      = 500
	DefaultSilenceThreshold       = -50.0
	DefaultSilenceDurationMs      = 200
	DefaultSilenceRecoveryMs      = 40
	DefaultArchiveIntervalMinutes = 60
	DefaultZabbixPort             = 10051
	DefaultNotifyMinGapMs         = 1000
)

// validate checks struct tags. Error fields use JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port int `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
}

// SamplerConfig holds diagnostic sampling settings.
type SamplerConfig struct {
	IntervalMs int64 `json:"interval_ms" validate:"gte=50,lte=60000"` // Period per channel
}

// SilenceDetectionConfig holds the level thresholds that derive mute events.
type SilenceDetectionConfig struct {
	ThresholdDB float64 `json:"threshold_db" validate:"gte=-60,lte=0"`   // Silence threshold in dB
	DurationMs  int64   `json:"duration_ms" validate:"gte=0,lte=300000"` // Silence before muted
	RecoveryMs  int64   `json:"recovery_ms" validate:"gte=0,lte=60000"`  // Audio before unmuted
}

// LogConfig holds event log settings.
type LogConfig struct {
	Path string `json:"path" validate:"omitempty,max=4096"` // Empty uses the platform default
}

// S3Config holds S3-compatible storage settings for log archival.
type S3Config struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url,max=2048"`
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"`
	Prefix          string `json:"prefix" validate:"omitempty,max=512"`
}

// IsConfigured reports whether the bucket and credentials are set.
func (s *S3Config) IsConfigured() bool {
	return util.IsConfigured(s.Bucket, s.AccessKeyID, s.SecretAccessKey)
}

// ArchiveConfig holds log rotation and upload settings.
type ArchiveConfig struct {
	IntervalMinutes int      `json:"interval_minutes" validate:"gte=0,lte=10080"` // 0 disables rotation
	RetentionDays   int      `json:"retention_days" validate:"gte=0,lte=3650"`    // 0 keeps archives forever
	S3              S3Config `json:"s3"`
}

// WebRTCConfig holds ingest settings.
type WebRTCConfig struct {
	ICEServers []string `json:"ice_servers" validate:"omitempty,dive,max=2048"` // stun:/turn: URLs
}

// NotifyConfig holds alerting targets for long gaps.
type NotifyConfig struct {
	MinGapMs     int64  `json:"min_gap_ms" validate:"gte=0,lte=3600000"` // Shortest gap that alerts
	WebhookURL   string `json:"webhook_url" validate:"omitempty,url,max=2048"`
	ZabbixServer string `json:"zabbix_server" validate:"omitempty,hostname|ip"`
	ZabbixPort   int    `json:"zabbix_port" validate:"gte=1,lte=65535"`
	ZabbixHost   string `json:"zabbix_host" validate:"omitempty,max=128"`
	ZabbixKey    string `json:"zabbix_key" validate:"omitempty,max=255"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Sampler          SamplerConfig          `json:"sampler"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Log              LogConfig              `json:"log"`
	Archive          ArchiveConfig          `json:"archive"`
	WebRTC           WebRTCConfig           `json:"webrtc"`
	Notify           NotifyConfig           `json:"notify"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.Archive.IntervalMinutes = DefaultArchiveIntervalMinutes
	c.Notify.MinGapMs = DefaultNotifyMinGapMs
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	if c.Log.Path != "" {
		if err := util.ValidatePath("log.path", c.Log.Path); err != nil {
			return err
		}
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.TrimPrefix(e.Namespace(), "Config."), util.ValidationMessage(e)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	c.Sampler.IntervalMs = cmp.Or(c.Sampler.IntervalMs, DefaultSamplerIntervalMs)
	c.SilenceDetection.ThresholdDB = cmp.Or(c.SilenceDetection.ThresholdDB, DefaultSilenceThreshold)
	c.SilenceDetection.DurationMs = cmp.Or(c.SilenceDetection.DurationMs, DefaultSilenceDurationMs)
	c.SilenceDetection.RecoveryMs = cmp.Or(c.SilenceDetection.RecoveryMs, DefaultSilenceRecoveryMs)
	c.Notify.ZabbixPort = cmp.Or(c.Notify.ZabbixPort, DefaultZabbixPort)
	if c.WebRTC.ICEServers == nil {
		c.WebRTC.ICEServers = []string{}
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// SetSamplerInterval updates the sampling period and saves the configuration.
func (c *Config) SetSamplerInterval(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.Sampler.IntervalMs
	c.Sampler.IntervalMs = ms
	if err := c.validateLocked(); err != nil {
		c.Sampler.IntervalMs = prev
		return err
	}
	return c.saveLocked()
}

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	WebPort int

	SamplerInterval time.Duration

	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64

	LogPath string

	ArchiveInterval  time.Duration
	ArchiveRetention int
	S3               S3Config

	ICEServers []string

	Notify NotifyConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:           c.System.Port,
		SamplerInterval:   time.Duration(c.Sampler.IntervalMs) * time.Millisecond,
		SilenceThreshold:  c.SilenceDetection.ThresholdDB,
		SilenceDurationMs: c.SilenceDetection.DurationMs,
		SilenceRecoveryMs: c.SilenceDetection.RecoveryMs,
		LogPath:           c.Log.Path,
		ArchiveInterval:   time.Duration(c.Archive.IntervalMinutes) * time.Minute,
		ArchiveRetention:  c.Archive.RetentionDays,
		S3:                c.Archive.S3,
		ICEServers:        slices.Clone(c.WebRTC.ICEServers),
		Notify:            c.Notify,
	}
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasArchive reports whether rotated logs should be uploaded.
func (s *Snapshot) HasArchive() bool {
	return s.ArchiveInterval > 0 && s.S3.IsConfigured()
}
