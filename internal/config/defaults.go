package config

const (
	defaultDataDir           = "~/.local/share/winch/data"
	defaultLogDir            = "~/.local/share/winch/logs"
	defaultAPIBind           = "127.0.0.1:7648"
	defaultBaseURL           = "http://localhost:7648"
	defaultFetchTimeout      = 600
	defaultAudioQuality      = 128
	defaultConcurrency       = 1
	defaultTaskIntervalMin   = 300
	defaultTaskIntervalMax   = 1800
	defaultQueuePollInterval = 5
	defaultDedupPolicy       = DedupPolicySuperset
	defaultCallbackTimeout   = 10
	defaultCleanupInterval   = 24
	defaultRetentionDays     = 60
	defaultNtfyTimeout       = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Dedup policy values accepted by workflow.dedup_policy.
const (
	DedupPolicySuperset = "superset"
	DedupPolicyExact    = "exact"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
			BaseURL: defaultBaseURL,
		},
		Fetch: Fetch{
			TimeoutSeconds: defaultFetchTimeout,
			AudioQuality:   defaultAudioQuality,
		},
		Workflow: Workflow{
			Concurrency:       defaultConcurrency,
			TaskIntervalMin:   defaultTaskIntervalMin,
			TaskIntervalMax:   defaultTaskIntervalMax,
			QueuePollInterval: defaultQueuePollInterval,
			DedupPolicy:       defaultDedupPolicy,
		},
		Callback: Callback{
			TimeoutSeconds: defaultCallbackTimeout,
		},
		Cleanup: Cleanup{
			IntervalHours: defaultCleanupInterval,
			RetentionDays: defaultRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
