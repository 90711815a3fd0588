package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeWorkflow()
	c.normalizeCallback()
	c.normalizeCleanup()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("WINCH_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	c.Paths.BaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.BaseURL), "/")
	if c.Paths.BaseURL == "" {
		c.Paths.BaseURL = defaultBaseURL
	}
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.BaseURL = strings.TrimRight(strings.TrimSpace(c.Fetch.BaseURL), "/")
	c.Fetch.APIKey = strings.TrimSpace(c.Fetch.APIKey)
	if c.Fetch.APIKey == "" {
		if value, ok := os.LookupEnv("WINCH_FETCH_API_KEY"); ok {
			c.Fetch.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	if c.Fetch.AudioQuality <= 0 {
		c.Fetch.AudioQuality = defaultAudioQuality
	}
	c.Fetch.Proxy = strings.TrimSpace(c.Fetch.Proxy)
	c.Fetch.CookieFile = strings.TrimSpace(c.Fetch.CookieFile)
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Concurrency <= 0 {
		c.Workflow.Concurrency = defaultConcurrency
	}
	if c.Workflow.TaskIntervalMin <= 0 {
		c.Workflow.TaskIntervalMin = defaultTaskIntervalMin
	}
	if c.Workflow.TaskIntervalMax <= 0 {
		c.Workflow.TaskIntervalMax = defaultTaskIntervalMax
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	c.Workflow.DedupPolicy = strings.ToLower(strings.TrimSpace(c.Workflow.DedupPolicy))
	if c.Workflow.DedupPolicy == "" {
		c.Workflow.DedupPolicy = defaultDedupPolicy
	}
}

func (c *Config) normalizeCallback() {
	if c.Callback.TimeoutSeconds <= 0 {
		c.Callback.TimeoutSeconds = defaultCallbackTimeout
	}
}

func (c *Config) normalizeCleanup() {
	if c.Cleanup.IntervalHours <= 0 {
		c.Cleanup.IntervalHours = defaultCleanupInterval
	}
	if c.Cleanup.RetentionDays <= 0 {
		c.Cleanup.RetentionDays = defaultRetentionDays
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
