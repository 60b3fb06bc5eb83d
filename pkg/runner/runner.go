package runner

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/config"
	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/processfile"
)

// RunOptions control a foreground run.
type RunOptions struct {
	ConfigFile string

	// RunDuration stops the watcher after this many seconds. Zero runs until
	// a signal arrives.
	RunDuration int

	// RuntimeFiles places the PID and port files. Defaults to the per-user
	// runtime directory.
	RuntimeFiles *processfile.ProcessFileManager

	// Stopped is closed once the watcher has shut down.
	Stopped chan struct{}
}

// NewLogger builds the zap-backed logger described by the logging section.
func NewLogger(cfg config.LoggingConfig) (*logging.ZapLogger, error) {
	zapConfig := logging.DefaultZapConfig()
	if cfg.Level != "" {
		zapConfig.Level = cfg.Level
	}
	if cfg.Format != "" {
		zapConfig.Format = cfg.Format
	}
	if cfg.Output != "" {
		zapConfig.Output = cfg.Output
	}
	logger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		return nil, errors.NewValidationError("invalid logging configuration", err)
	}
	return logger, nil
}

// Run loads the configuration, starts the watcher and blocks until a signal
// arrives or the run duration ends.
func Run(options RunOptions) error {
	if options.Stopped != nil {
		defer close(options.Stopped)
	}

	bootstrapLogger, err := logging.NewZapLogger(logging.DefaultZapConfig())
	if err != nil {
		return errors.NewInternalError("failed to create logger", err)
	}
	defer bootstrapLogger.Sync()

	ctx := context.Background()
	if options.RunDuration > 0 {
		duration := time.Duration(options.RunDuration) * time.Second
		bootstrapLogger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	bootstrapLogger.Infof("Using CONFIGURATION FILE: %s", options.ConfigFile)

	store := config.NewFileStore(options.ConfigFile, logging.WithPrefix(bootstrapLogger, "config: "))
	cfg, err := store.Load()
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", options.ConfigFile)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Infof("Watcher runner starting, services: %d, interval: %ds", len(cfg.Services), cfg.Monitoring.IntervalSeconds)

	w, err := NewWatcher(ctx, store, Options{Logger: logger})
	if err != nil {
		return errors.NewInternalError("failed to create watcher", err)
	}
	defer w.Close()

	if err := w.Start(ctx); err != nil {
		return errors.NewInternalError("failed to start watcher", err)
	}

	runtimeFiles := options.RuntimeFiles
	if runtimeFiles == nil {
		runtimeFiles = processfile.NewProcessFileManager(
			processfile.GetRecommendedProcessFileConfig("user"), logging.WithPrefix(logger, "processfile: "))
	}
	if err := runtimeFiles.WritePIDFile(processfile.DefaultInstanceName, os.Getpid()); err != nil {
		logger.Warnf("Failed to write PID file: %v", err)
	}
	if port := w.ControlPort(); port != 0 {
		if err := runtimeFiles.WritePortFile(processfile.DefaultInstanceName, port); err != nil {
			logger.Warnf("Failed to write port file: %v", err)
		}
	}
	defer runtimeFiles.RemoveFiles(processfile.DefaultInstanceName)

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	}
	defer signal.Stop(sig)

	logger.Infof("Watcher is running")

	for {
		select {
		case receivedSignal := <-sig:
			if receivedSignal == syscall.SIGHUP {
				logger.Infof("Watcher runner received SIGHUP, reloading configuration")
				if _, err := store.Reload(); err != nil {
					logger.Errorf("Failed to reload configuration: %v", err)
				}
				continue
			}
			logger.Infof("Watcher runner received signal: %v", receivedSignal)
		case <-ctx.Done():
			logger.Infof("Watcher runner timed out")
		}
		break
	}

	logger.Infof("Watcher runner stopping")
	return nil
}

// ValidateConfigFile validates a configuration file without running it.
func ValidateConfigFile(configFile string) error {
	cfg, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	return nil
}
