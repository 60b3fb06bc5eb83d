// Package processfile places the watcher's runtime files: the PID file of a
// running daemon and the port file that lets the command line client find
// its health endpoint.
package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
)

const (
	DefaultAppName      = "hsu-watcher"
	DefaultInstanceName = "watcher"
)

type ProcessFileConfig struct {
	// Base directory for runtime files. If empty, uses OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	AppName string

	UseSubdirectory bool
}

// ServiceContext selects the OS default directory.
type ServiceContext string

const (
	SystemService ServiceContext = "system"
	UserService   ServiceContext = "user"
)

type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

func (m *ProcessFileManager) GeneratePIDFilePath(instance string) string {
	baseDir := m.getBaseDirectory()
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return filepath.Join(baseDir, instance+".pid")
}

func (m *ProcessFileManager) GeneratePortFilePath(instance string) string {
	pidPath := m.GeneratePIDFilePath(instance)
	return strings.TrimSuffix(pidPath, ".pid") + ".port"
}

func (m *ProcessFileManager) WritePIDFile(instance string, pid int) error {
	path := m.GeneratePIDFilePath(instance)
	m.logger.Debugf("Writing PID file, instance: %s, pid: %d, path: %s", instance, pid, path)
	if err := writeNumber(path, pid); err != nil {
		m.logger.Errorf("Failed to write PID file, instance: %s, path: %s, error: %v", instance, path, err)
		return err
	}
	m.logger.Infof("PID file written, instance: %s, pid: %d, path: %s", instance, pid, path)
	return nil
}

func (m *ProcessFileManager) WritePortFile(instance string, port int) error {
	path := m.GeneratePortFilePath(instance)
	m.logger.Debugf("Writing port file, instance: %s, port: %d, path: %s", instance, port, path)
	if err := writeNumber(path, port); err != nil {
		m.logger.Errorf("Failed to write port file, instance: %s, path: %s, error: %v", instance, path, err)
		return err
	}
	m.logger.Infof("Port file written, instance: %s, port: %d, path: %s", instance, port, path)
	return nil
}

func (m *ProcessFileManager) ReadPIDFile(instance string) (int, error) {
	return readNumber(m.GeneratePIDFilePath(instance))
}

func (m *ProcessFileManager) ReadPortFile(instance string) (int, error) {
	return readNumber(m.GeneratePortFilePath(instance))
}

// RemoveFiles deletes the PID and port files of instance. Missing files are
// not an error.
func (m *ProcessFileManager) RemoveFiles(instance string) {
	for _, path := range []string{m.GeneratePIDFilePath(instance), m.GeneratePortFilePath(instance)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warnf("Failed to remove runtime file, path: %s, error: %v", path, err)
		}
	}
}

func (m *ProcessFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}
	if m.config.ServiceContext == SystemService {
		return getSystemServiceDirectory()
	}
	return getUserServiceDirectory()
}

func getSystemServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData
	case "darwin":
		return "/var/run"
	default:
		if _, err := os.Stat("/run"); err == nil {
			return "/run"
		}
		return "/var/run"
	}
}

func getUserServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData
		}
		return os.TempDir()
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")
	default:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return os.TempDir()
	}
}

// ValidateDirectory creates the directory of path if needed and checks that
// it is writable.
func ValidateDirectory(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access runtime directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create runtime directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("runtime path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("runtime directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)
	return nil
}

func writeNumber(path string, value int) error {
	if err := ValidateDirectory(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", value)), 0644); err != nil {
		return errors.NewIOError("failed to write runtime file", err).WithContext("path", path)
	}
	return nil
}

func readNumber(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("runtime file not found", err).WithContext("path", path)
		}
		return 0, errors.NewIOError("failed to read runtime file", err).WithContext("path", path)
	}
	text := strings.TrimSpace(string(content))
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.NewValidationError("invalid number in runtime file", err).WithContext("path", path).WithContext("content", text)
	}
	return value, nil
}

// GetRecommendedProcessFileConfig maps a deployment scenario to a config.
func GetRecommendedProcessFileConfig(scenario string) ProcessFileConfig {
	switch strings.ToLower(scenario) {
	case "system", "daemon", "service":
		return ProcessFileConfig{ServiceContext: SystemService, UseSubdirectory: true}
	case "development", "dev", "test":
		return ProcessFileConfig{
			BaseDirectory:  filepath.Join(os.TempDir(), DefaultAppName+"-dev"),
			ServiceContext: UserService,
		}
	default:
		return ProcessFileConfig{ServiceContext: UserService, UseSubdirectory: true}
	}
}
