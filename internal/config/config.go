// Package config assembles till settings from defaults, an optional YAML
// file and TILLSYNC_* environment variables, then validates the result
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// MinPollInterval is the floor applied to poll_interval.
const MinPollInterval = 5 * time.Second

// Config holds every setting of a till session.
type Config struct {
	OrderServiceURL    string        `yaml:"order_service_url" json:"order_service_url"`
	GatewayURL         string        `yaml:"integration_gateway_url" json:"integration_gateway_url"`
	WSURL              string        `yaml:"ws_url" json:"ws_url,omitempty"`
	TenantID           string        `yaml:"tenant_id" json:"tenant_id"`
	Token              string        `yaml:"token" json:"-"`
	PollInterval       time.Duration `yaml:"poll_interval" json:"poll_interval"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	DrainThrottle      time.Duration `yaml:"drain_throttle" json:"drain_throttle"`
	RequestTimeout     time.Duration `yaml:"request_timeout" json:"request_timeout"`
	ProbeInterval      time.Duration `yaml:"probe_interval" json:"probe_interval"`
	AlertAfterAttempts int           `yaml:"alert_after_attempts" json:"alert_after_attempts"`
	Database           string        `yaml:"database" json:"database"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		PollInterval:       15 * time.Second,
		ReconnectDelay:     5 * time.Second,
		DrainThrottle:      5 * time.Second,
		RequestTimeout:     20 * time.Second,
		ProbeInterval:      10 * time.Second,
		AlertAfterAttempts: 10,
		Database:           "tillsync.db",
	}
}

// Load builds a Config. path names a YAML file and may be empty.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Code: ErrCodeRead, Message: fmt.Sprintf("reading %s", path), Err: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &Error{Code: ErrCodeParse, Message: fmt.Sprintf("parsing %s", path), Err: err}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.PollInterval = max(cfg.PollInterval, MinPollInterval)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"TILLSYNC_ORDER_SERVICE_URL", &c.OrderServiceURL},
		{"TILLSYNC_GATEWAY_URL", &c.GatewayURL},
		{"TILLSYNC_WS_URL", &c.WSURL},
		{"TILLSYNC_TENANT_ID", &c.TenantID},
		{"TILLSYNC_TOKEN", &c.Token},
		{"TILLSYNC_DB", &c.Database},
	}
	for _, s := range strs {
		if v, ok := lookup(s.env); ok {
			*s.dst = strings.TrimSpace(v)
		}
	}

	durs := []struct {
		env string
		dst *time.Duration
	}{
		{"TILLSYNC_POLL_INTERVAL", &c.PollInterval},
		{"TILLSYNC_REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, d := range durs {
		v, ok := lookup(d.env)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return &Error{Code: ErrCodeEnv, Message: d.env, Err: err}
		}
		*d.dst = parsed
	}
	return nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &Error{Code: ErrCodeInvalid, Message: "compiling schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := ctx.Encode(map[string]any{
		"order_service_url":       c.OrderServiceURL,
		"integration_gateway_url": c.GatewayURL,
		"ws_url":                  c.WSURL,
		"tenant_id":               c.TenantID,
		"token":                   c.Token,
		"poll_interval":           int64(c.PollInterval),
		"reconnect_delay":         int64(c.ReconnectDelay),
		"drain_throttle":          int64(c.DrainThrottle),
		"request_timeout":         int64(c.RequestTimeout),
		"probe_interval":          int64(c.ProbeInterval),
		"alert_after_attempts":    c.AlertAfterAttempts,
		"database":                c.Database,
	})
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return &Error{Code: ErrCodeInvalid, Message: "invalid configuration", Err: err}
	}
	return nil
}

// PushURL returns the WebSocket URL for status push, with the tenant and
// token attached. Without an explicit ws_url it is derived from the order
// service host: http becomes ws, https becomes wss, path /ws/orders.
func (c Config) PushURL() (string, error) {
	var u *url.URL
	if c.WSURL != "" {
		parsed, err := url.Parse(c.WSURL)
		if err != nil {
			return "", fmt.Errorf("parse ws_url: %w", err)
		}
		u = parsed
	} else {
		base, err := url.Parse(c.OrderServiceURL)
		if err != nil {
			return "", fmt.Errorf("parse order_service_url: %w", err)
		}
		scheme := "wss"
		switch base.Scheme {
		case "http":
			scheme = "ws"
		case "https":
		default:
			return "", errors.New("order_service_url must be http or https")
		}
		u = &url.URL{Scheme: scheme, Host: base.Host, Path: "/ws/orders"}
	}

	q := u.Query()
	q.Set("tenantId", c.TenantID)
	q.Set("token", c.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
