package logs

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns the platform log directory for the server.
func Dir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return windowsDir()
	case "darwin":
		return macOSDir()
	case "linux":
		return linuxDir()
	default:
		return fallbackDir()
	}
}

// windowsDir uses %LOCALAPPDATA%\mxcp\logs.
func windowsDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return fallbackDir()
		}
		localAppData = filepath.Join(userProfile, "AppData", "Local")
	}
	return filepath.Join(localAppData, "mxcp", "logs"), nil
}

// macOSDir uses ~/Library/Logs/mxcp.
func macOSDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fallbackDir()
	}
	return filepath.Join(homeDir, "Library", "Logs", "mxcp"), nil
}

// linuxDir follows XDG: $XDG_STATE_HOME/mxcp/logs, or /var/log/mxcp
// when running as root.
func linuxDir() (string, error) {
	if os.Getuid() == 0 {
		return "/var/log/mxcp", nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fallbackDir()
	}
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "mxcp", "logs"), nil
}

func fallbackDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mxcp", "logs"), nil
	}
	return filepath.Join(homeDir, ".mxcp", "logs"), nil
}

// FilePath resolves the log file location: an explicit directory wins,
// otherwise the platform default is created and used.
func FilePath(logDir, filename string) (string, error) {
	dir := logDir
	if dir == "" {
		var err error
		dir, err = Dir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
