package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NotificationConfig carries operator-tunable notification copy.
type NotificationConfig struct {
	FailureMessages map[string]string `mapstructure:"failureMessages"`
	SupportEmail    string            `mapstructure:"supportEmail"`
	AdminChannel    string            `mapstructure:"adminChannel"`
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		FailureMessages: map[string]string{},
		SupportEmail:    "support@trailpay.local",
	}
}

type NotificationConfigHolder struct {
	current atomic.Value // holds NotificationConfig
}

// NewStaticNotificationConfigHolder returns a holder that never reloads.
func NewStaticNotificationConfigHolder(cfg NotificationConfig) *NotificationConfigHolder {
	holder := &NotificationConfigHolder{}
	holder.current.Store(normalizeNotificationConfig(cfg))
	return holder
}

func NewNotificationConfigHolder(cfg Config, log *zap.Logger) (*NotificationConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.NotificationConfigPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("notifications")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/trailpay")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TRAILPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultNotificationConfig()
	defaults.AdminChannel = cfg.Slack.AdminChannel

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return NewStaticNotificationConfigHolder(defaults), nil
		}
		return nil, err
	}

	var loaded NotificationConfig
	if err := v.UnmarshalKey("notifications", &loaded); err != nil {
		return nil, err
	}
	if loaded.AdminChannel == "" {
		loaded.AdminChannel = defaults.AdminChannel
	}
	if loaded.SupportEmail == "" {
		loaded.SupportEmail = defaults.SupportEmail
	}

	holder := NewStaticNotificationConfigHolder(loaded)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated NotificationConfig
		if err := v.UnmarshalKey("notifications", &updated); err != nil {
			log.Warn("notification config reload failed", zap.Error(err))
			return
		}
		if updated.AdminChannel == "" {
			updated.AdminChannel = defaults.AdminChannel
		}
		if updated.SupportEmail == "" {
			updated.SupportEmail = defaults.SupportEmail
		}
		holder.current.Store(normalizeNotificationConfig(updated))
		log.Info("notification config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *NotificationConfigHolder) Get() NotificationConfig {
	if h == nil {
		return DefaultNotificationConfig()
	}
	cfg, ok := h.current.Load().(NotificationConfig)
	if !ok {
		return DefaultNotificationConfig()
	}
	return cfg
}

func normalizeNotificationConfig(cfg NotificationConfig) NotificationConfig {
	messages := make(map[string]string, len(cfg.FailureMessages))
	for code, message := range cfg.FailureMessages {
		code = strings.ToLower(strings.TrimSpace(code))
		message = strings.TrimSpace(message)
		if code == "" || message == "" {
			continue
		}
		messages[code] = message
	}
	cfg.FailureMessages = messages
	return cfg
}
