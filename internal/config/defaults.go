package config

const (
	defaultStagingDir      = "~/.local/share/stemd/staging"
	defaultLibraryDir      = "~/.local/share/stemd/library"
	defaultOriginalsDir    = "~/.local/share/stemd/originals"
	defaultLogDir          = "~/.local/share/stemd/logs"
	defaultSeparatorBinary = "stem-separate"
	defaultMixBinary       = "stem-mix"
	defaultSeparatorEngine = "demucs"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	defaultWorkers                   = 2
	defaultDispatchIntervalSeconds   = 2
	defaultSweepIntervalSeconds      = 60
	defaultOrphanGraceMinutes        = 5
	defaultRetentionDays             = 7
	defaultErrorRetryIntervalSeconds = 10
	defaultNotifyRequestTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:   defaultStagingDir,
			LibraryDir:   defaultLibraryDir,
			OriginalsDir: defaultOriginalsDir,
			LogDir:       defaultLogDir,
		},
		Separator: Separator{
			Binary:    defaultSeparatorBinary,
			MixBinary: defaultMixBinary,
			Engine:    defaultSeparatorEngine,
		},
		Workflow: Workflow{
			Workers:                   defaultWorkers,
			DispatchIntervalSeconds:   defaultDispatchIntervalSeconds,
			SweepIntervalSeconds:      defaultSweepIntervalSeconds,
			OrphanGraceMinutes:        defaultOrphanGraceMinutes,
			RetentionDays:             defaultRetentionDays,
			ErrorRetryIntervalSeconds: defaultErrorRetryIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
