package device

import (
	"encoding/json"
	"fmt"
	"time"
)

// Connection parameter defaults applied by ApplyDefaults.
const (
	defaultTimeoutMS      = 5000
	defaultRetryCount     = 2
	defaultRetryDelayMS   = 1000
	defaultOpenDurationS  = 10
	defaultHeartbeatS     = 15
	defaultReconnectDelay = 5
)

// ConnConfig holds a device's connection parameters, persisted as a JSON
// blob on the device row. Which fields matter depends on the device kind
// and protocol; unknown fields are preserved through load/store cycles by
// the repository keeping the raw blob.
type ConnConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// TimeoutMS bounds each outbound network call.
	TimeoutMS int `json:"timeout,omitempty"`

	// RetryCount and RetryDelayMS drive the fixed-delay retry loop for
	// barrier commands. RetryCount is the number of retries after the
	// first attempt; an absent field means the default, an explicit 0
	// disables retries. Read it through Retries.
	RetryCount   *int `json:"retryCount,omitempty"`
	RetryDelayMS int  `json:"retryDelay,omitempty"`

	// OpenDurationS is the auto-close hold time after a successful open.
	OpenDurationS int `json:"openDuration,omitempty"`

	// Vendor selects the LPR vendor profile (hikvision, dahua, ...).
	Vendor string `json:"vendor,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// MinConfidence is the recognition-confidence gate for this device.
	// Zero means the device sets no minimum of its own and the site-wide
	// default applies downstream.
	MinConfidence float64 `json:"minConfidence,omitempty"`

	// Override paths for the custom LPR vendor profile.
	EventPath   string `json:"eventPath,omitempty"`
	StatusPath  string `json:"statusPath,omitempty"`
	CapturePath string `json:"capturePath,omitempty"`

	CustomHeaders map[string]string `json:"customHeaders,omitempty"`
	CustomParams  map[string]string `json:"customParams,omitempty"`

	// Relay-board parameters.
	RelayType string `json:"relayType,omitempty"`
	Channel   int    `json:"channel,omitempty"`

	// Fully custom relay URL templates with a {channel} placeholder.
	OpenURL   string `json:"openUrl,omitempty"`
	CloseURL  string `json:"closeUrl,omitempty"`
	StatusURL string `json:"statusUrl,omitempty"`

	// Socket keep-alive parameters (TCP LPR).
	HeartbeatS      int `json:"heartbeat,omitempty"`
	ReconnectDelayS int `json:"reconnectDelay,omitempty"`
}

// ParseConnConfig decodes a persisted JSON blob into a ConnConfig with
// defaults applied.
func ParseConnConfig(raw []byte) (ConnConfig, error) {
	var cfg ConnConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return ConnConfig{}, fmt.Errorf("%w: %w", ErrInvalidConnConfig, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with operational defaults.
func (c *ConnConfig) ApplyDefaults() {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = defaultTimeoutMS
	}
	if c.RetryDelayMS <= 0 {
		c.RetryDelayMS = defaultRetryDelayMS
	}
	if c.OpenDurationS <= 0 {
		c.OpenDurationS = defaultOpenDurationS
	}
	if c.HeartbeatS <= 0 {
		c.HeartbeatS = defaultHeartbeatS
	}
	if c.ReconnectDelayS <= 0 {
		c.ReconnectDelayS = defaultReconnectDelay
	}
}

// Timeout returns the per-call network timeout.
func (c ConnConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Retries returns the number of command retries after the first
// attempt. An unset field falls back to the default; an explicit 0
// disables retrying.
func (c ConnConfig) Retries() int {
	if c.RetryCount == nil {
		return defaultRetryCount
	}
	if *c.RetryCount < 0 {
		return 0
	}
	return *c.RetryCount
}

// RetryDelay returns the fixed inter-attempt delay.
func (c ConnConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// OpenDuration returns the auto-close hold duration.
func (c ConnConfig) OpenDuration() time.Duration {
	return time.Duration(c.OpenDurationS) * time.Second
}

// Heartbeat returns the socket keep-alive interval.
func (c ConnConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatS) * time.Second
}

// ReconnectDelay returns the fixed delay before a socket reconnect.
func (c ConnConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayS) * time.Second
}

// clone deep-copies the pointer and map fields so cached devices stay
// isolated.
func (c ConnConfig) clone() ConnConfig {
	cpy := c
	if c.RetryCount != nil {
		n := *c.RetryCount
		cpy.RetryCount = &n
	}
	if c.CustomHeaders != nil {
		cpy.CustomHeaders = make(map[string]string, len(c.CustomHeaders))
		for k, v := range c.CustomHeaders {
			cpy.CustomHeaders[k] = v
		}
	}
	if c.CustomParams != nil {
		cpy.CustomParams = make(map[string]string, len(c.CustomParams))
		for k, v := range c.CustomParams {
			cpy.CustomParams[k] = v
		}
	}
	return cpy
}
