package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	portEnvVar     = "PORT"
	appNameVar     = "APP_NAME"
	folderEnvVar   = "DATA_FOLDER"
	baseURLVar     = "BASE_URL"
	coursesFileVar = "COURSES_FILE"
	storageVar     = "STORAGE"
	logLevelVar    = "LOG_LEVEL"
)

// Storage backends understood by GetStorageBackend.
const (
	StorageDropbox = "dropbox"
	StorageFile    = "file"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Roll Call")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetCoursesFile returns the path of the TOML course list. Defaults to
// courses.toml inside the data folder.
func (e EnvVars) GetCoursesFile() string {
	return GetEnv(coursesFileVar, filepath.Join(e.GetDataFolder(), "courses.toml"))
}

// GetStorageBackend selects where course datasets live: "dropbox" (default)
// or "file" for a local directory under the data folder.
func (EnvVars) GetStorageBackend() string {
	return strings.ToLower(GetEnv(storageVar, StorageDropbox))
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetBaseURL returns the externally visible URL of this server (e.g., "http://localhost:8080").
// The OAuth redirect URI is derived from it.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
