// Package conf loads and validates livemon settings.
package conf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root configuration.
type Settings struct {
	Main struct {
		Name     string `mapstructure:"name" yaml:"name"`
		LogLevel string `mapstructure:"loglevel" yaml:"loglevel"`
		Timezone string `mapstructure:"timezone" yaml:"timezone"`
	} `mapstructure:"main" yaml:"main"`

	Monitoring   MonitoringSettings   `mapstructure:"monitoring" yaml:"monitoring"`
	Notification NotificationSettings `mapstructure:"notification" yaml:"notification"`
	History      HistorySettings      `mapstructure:"history" yaml:"history"`
	WebServer    WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

// MonitoringSettings configures synchronization with the remote system.
type MonitoringSettings struct {
	APIBaseURL        string             `mapstructure:"apibaseurl" yaml:"apibaseurl"`
	PushURL           string             `mapstructure:"pushurl" yaml:"pushurl"`
	Transport         string             `mapstructure:"transport" yaml:"transport"` // websocket or mqtt
	Mode              string             `mapstructure:"mode" yaml:"mode"`           // push or poll
	PollInterval      Duration           `mapstructure:"pollinterval" yaml:"pollinterval"`
	SlowInterval      Duration           `mapstructure:"slowinterval" yaml:"slowinterval"`
	ReconnectDelay    Duration           `mapstructure:"reconnectdelay" yaml:"reconnectdelay"`
	MaxReconnectDelay Duration           `mapstructure:"maxreconnectdelay" yaml:"maxreconnectdelay"`
	RequestTimeout    Duration           `mapstructure:"requesttimeout" yaml:"requesttimeout"`
	Retention         Duration           `mapstructure:"retention" yaml:"retention"`
	AutoIncident      bool               `mapstructure:"autoincident" yaml:"autoincident"`
	Thresholds        map[string]float64 `mapstructure:"thresholds" yaml:"thresholds"`
	Escalation        EscalationSettings `mapstructure:"escalation" yaml:"escalation"`
	MQTT              MQTTSettings       `mapstructure:"mqtt" yaml:"mqtt"`
}

// EscalationSettings controls automatic escalation of repeated critical alerts.
type EscalationSettings struct {
	Repeats int      `mapstructure:"repeats" yaml:"repeats"`
	Window  Duration `mapstructure:"window" yaml:"window"`
}

// MQTTSettings configures the MQTT push transport.
type MQTTSettings struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// NotificationSettings configures the notification dispatcher.
type NotificationSettings struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	MinSeverity     string   `mapstructure:"minseverity" yaml:"minseverity"`
	DedupWindow     Duration `mapstructure:"dedupwindow" yaml:"dedupwindow"`
	AlertDismiss    Duration `mapstructure:"alertdismiss" yaml:"alertdismiss"`
	IncidentDismiss Duration `mapstructure:"incidentdismiss" yaml:"incidentdismiss"`
	RatePerSecond   float64  `mapstructure:"ratepersecond" yaml:"ratepersecond"`
	Burst           int      `mapstructure:"burst" yaml:"burst"`
	URLs            []string `mapstructure:"urls" yaml:"urls"`
}

// HistorySettings configures persisted notification history.
type HistorySettings struct {
	Driver        string `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	DSN           string `mapstructure:"dsn" yaml:"dsn"`
	RetentionDays int    `mapstructure:"retentiondays" yaml:"retentiondays"`
}

// WebServerSettings configures the local JSON API.
type WebServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// EnvPrefix is the prefix for environment overrides, e.g. LIVEMON_MONITORING_PUSHURL.
const EnvPrefix = "LIVEMON"

// DefaultMQTTTopic is the base topic of the MQTT push transport.
const DefaultMQTTTopic = "livemon/monitoring"

var (
	settings *Settings
	mu       sync.RWMutex
)

// Setting returns the loaded settings, or nil before Load.
func Setting() *Settings {
	mu.RLock()
	defer mu.RUnlock()
	return settings
}

// Load reads settings from path (optional) and the environment, applies
// defaults, validates, and stores the result as the package-level settings.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	settings = s
	mu.Unlock()
	return s, nil
}

// Default returns settings populated with defaults only.
func Default() *Settings {
	v := viper.New()
	setDefaults(v)
	s := &Settings{}
	_ = v.Unmarshal(s, viper.DecodeHook(DurationDecodeHook()))
	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "livemon")
	v.SetDefault("main.loglevel", "info")

	v.SetDefault("monitoring.apibaseurl", "http://localhost:8080/api")
	v.SetDefault("monitoring.pushurl", "ws://localhost:8080/ws/monitoring")
	v.SetDefault("monitoring.transport", "websocket")
	v.SetDefault("monitoring.mode", "push")
	v.SetDefault("monitoring.pollinterval", "30s")
	v.SetDefault("monitoring.slowinterval", "5m")
	v.SetDefault("monitoring.reconnectdelay", "5s")
	v.SetDefault("monitoring.maxreconnectdelay", "60s")
	v.SetDefault("monitoring.requesttimeout", "10s")
	v.SetDefault("monitoring.retention", "24h")
	v.SetDefault("monitoring.autoincident", false)
	v.SetDefault("monitoring.escalation.repeats", 3)
	v.SetDefault("monitoring.escalation.window", "15m")
	v.SetDefault("monitoring.mqtt.topic", DefaultMQTTTopic)

	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.minseverity", "high")
	v.SetDefault("notification.dedupwindow", "5m")
	v.SetDefault("notification.alertdismiss", "10s")
	v.SetDefault("notification.incidentdismiss", "15s")
	v.SetDefault("notification.ratepersecond", 5.0)
	v.SetDefault("notification.burst", 20)

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.dsn", "livemon-history.db")
	v.SetDefault("history.retentiondays", 30)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "127.0.0.1:8090")
}

// Validate checks settings for values the engine cannot run with.
func (s *Settings) Validate() error {
	m := &s.Monitoring
	switch m.Transport {
	case "websocket", "mqtt":
	default:
		return fmt.Errorf("monitoring.transport must be websocket or mqtt, got %q", m.Transport)
	}
	switch m.Mode {
	case "push", "poll":
	default:
		return fmt.Errorf("monitoring.mode must be push or poll, got %q", m.Mode)
	}
	if m.APIBaseURL == "" {
		return fmt.Errorf("monitoring.apibaseurl is required")
	}
	if m.Mode == "push" && m.Transport == "websocket" && m.PushURL == "" {
		return fmt.Errorf("monitoring.pushurl is required in push mode")
	}
	if m.Mode == "push" && m.Transport == "mqtt" && m.MQTT.Broker == "" {
		return fmt.Errorf("monitoring.mqtt.broker is required for the mqtt transport")
	}
	if m.PollInterval.Std() < time.Second {
		return fmt.Errorf("monitoring.pollinterval must be at least 1s")
	}
	if m.ReconnectDelay.Std() <= 0 {
		return fmt.Errorf("monitoring.reconnectdelay must be positive")
	}
	if m.MaxReconnectDelay.Std() < m.ReconnectDelay.Std() {
		return fmt.Errorf("monitoring.maxreconnectdelay must not be below reconnectdelay")
	}
	if m.Escalation.Repeats < 0 {
		return fmt.Errorf("monitoring.escalation.repeats must not be negative")
	}
	switch s.Notification.MinSeverity {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("notification.minseverity must be one of low, medium, high, critical")
	}
	if s.Notification.DedupWindow.Std() < 0 {
		return fmt.Errorf("notification.dedupwindow must not be negative")
	}
	switch s.History.Driver {
	case "", "sqlite", "mysql":
	default:
		return fmt.Errorf("history.driver must be sqlite or mysql, got %q", s.History.Driver)
	}
	return nil
}
