package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tourdesk/tourdesk/libs/config"
)

// settings are the tunables that may also come from the YAML file named by
// DASHBOARD_CONFIG_FILE. Environment variables win over the file.
type settings struct {
	BackendTimeout  time.Duration `yaml:"backend_timeout"`
	BackendRate     float64       `yaml:"backend_rate_per_second"`
	BackendBurst    int           `yaml:"backend_burst"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RefreshCron     string        `yaml:"refresh_cron"`
	IdleAfter       time.Duration `yaml:"idle_after"`
	WeekStart       string        `yaml:"week_start"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RateLimitPerMin int           `yaml:"rate_limit_per_minute"`
	BodyLimitBytes  int64         `yaml:"body_limit_bytes"`
	KafkaTopics     []string      `yaml:"kafka_topics"`
	CORSOrigins     []string      `yaml:"cors_allowed_origins"`
}

func defaultSettings() settings {
	return settings{
		BackendTimeout:  10 * time.Second,
		BackendRate:     20,
		BackendBurst:    40,
		CacheTTL:        2 * time.Minute,
		RefreshCron:     "@every 1m",
		IdleAfter:       30 * time.Minute,
		WeekStart:       "sunday",
		RequestTimeout:  15 * time.Second,
		RateLimitPerMin: 300,
		BodyLimitBytes:  1 << 20,
		KafkaTopics:     []string{"booking.changed.v1", "availability.changed.v1", "calendar-preferences.changed.v1"},
	}
}

// loadSettings applies defaults, then the YAML overlay, then the environment. Bad values are
// logged and the previous layer's value is kept.
func loadSettings(logger *slog.Logger) (settings, error) {
	s := defaultSettings()
	if err := config.File(config.String("DASHBOARD_CONFIG_FILE", ""), &s); err != nil {
		return s, err
	}

	warn := func(err error) {
		if err != nil {
			logger.Warn("ignoring invalid setting", "err", err)
		}
	}
	var err error
	s.BackendTimeout, err = config.Duration("BACKEND_TIMEOUT_SECONDS", s.BackendTimeout)
	warn(err)
	s.BackendRate, err = config.Float("BACKEND_RATE_PER_SECOND", s.BackendRate)
	warn(err)
	s.BackendBurst, err = config.Int("BACKEND_BURST", s.BackendBurst)
	warn(err)
	s.CacheTTL, err = config.Duration("CACHE_TTL_SECONDS", s.CacheTTL)
	warn(err)
	s.IdleAfter, err = config.Duration("REFRESH_IDLE_AFTER", s.IdleAfter)
	warn(err)
	s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT_SECONDS", s.RequestTimeout)
	warn(err)
	s.RateLimitPerMin, err = config.Int("RATE_LIMIT_PER_MINUTE", s.RateLimitPerMin)
	warn(err)
	limit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", int(s.BodyLimitBytes))
	warn(err)
	s.BodyLimitBytes = int64(limit)
	s.RefreshCron = config.String("REFRESH_CRON", s.RefreshCron)
	s.WeekStart = config.String("WEEK_START", s.WeekStart)
	if topics := config.List("KAFKA_TOPICS"); len(topics) > 0 {
		s.KafkaTopics = topics
	}
	if origins := config.List("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		s.CORSOrigins = origins
	}

	if _, err := cron.ParseStandard(s.RefreshCron); err != nil {
		logger.Warn("invalid REFRESH_CRON; using default", "value", s.RefreshCron, "err", err)
		s.RefreshCron = defaultSettings().RefreshCron
	}
	if _, err := parseWeekday(s.WeekStart); err != nil {
		logger.Warn("invalid WEEK_START; using sunday", "value", s.WeekStart)
		s.WeekStart = "sunday"
	}
	return s, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", raw)
}
