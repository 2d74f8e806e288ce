package config

type Config interface {
	EnvConfig
	OAuthConfig
	SyncConfig
	AttendanceConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetCoursesFile() string
	GetStorageBackend() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Sync
	Attendance
}

func New() Config {
	return mainConfig{}
}
