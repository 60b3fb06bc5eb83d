package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/config"
	"github.com/core-tools/hsu-watcher/pkg/control"
	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/history"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/processfile"
	"github.com/core-tools/hsu-watcher/pkg/runner"
	"github.com/core-tools/hsu-watcher/pkg/statusprovider"
	"github.com/core-tools/hsu-watcher/pkg/watcher"

	flags "github.com/jessevdk/go-flags"
)

type globalOptions struct {
	Config  string `long:"config" short:"c" description:"path to the configuration file"`
	Verbose bool   `long:"verbose" short:"v" description:"log to stderr"`
}

var opts globalOptions

func configPath() (string, error) {
	if opts.Config != "" {
		return opts.Config, nil
	}
	return config.DefaultConfigPath()
}

func newLogger() (logging.Logger, error) {
	if !opts.Verbose {
		return logging.NewNopLogger(), nil
	}
	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = "debug"
	zapConfig.Output = "stderr"
	logger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type statusCommand struct{}

// Execute polls every configured service once.
func (c *statusCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := watcher.NewEngine(statusprovider.New(logger), watcher.EngineOptions{
		IntervalSeconds:      watcher.MaxIntervalSeconds,
		QueryTimeout:         cfg.Monitoring.QueryTimeout,
		MaxConcurrentQueries: cfg.Monitoring.MaxConcurrentQueries,
		Logger:               logger,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.ApplyConfig(cfg.WatchConfig()); err != nil {
		return err
	}
	if err := engine.Start(context.Background()); err != nil {
		return err
	}
	if err := engine.Stop(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tDISPLAY NAME\tSTATUS\tDETAIL")
	for _, svc := range engine.Services() {
		detail := ""
		if !svc.IsAvailable {
			detail = svc.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", svc.ID, svc.DisplayName, svc.LastKnownStatus, detail)
	}
	return w.Flush()
}

type healthCommand struct {
	Address string `long:"address" short:"a" description:"watcher address, defaults to localhost and the configured port"`
	Service string `long:"service" short:"s" description:"service id; empty asks about the watcher itself"`
}

// Execute asks a running watcher through its gRPC health endpoint.
func (c *healthCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	address := c.Address
	if address == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		port := cfg.Control.GRPCPort
		if port == 0 {
			runtimeFiles := processfile.NewProcessFileManager(processfile.GetRecommendedProcessFileConfig("user"), logger)
			if port, err = runtimeFiles.ReadPortFile(processfile.DefaultInstanceName); err != nil {
				return errors.NewValidationError("no health endpoint configured or running", err)
			}
		}
		address = fmt.Sprintf("localhost:%d", port)
	}

	conn, err := control.Dial(address)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gateway := control.NewGRPCClientGateway(conn, logger)
	status, err := control.RetryCheck(ctx, gateway, c.Service, control.RetryCheckOptions{
		RetryAttempts: 5,
		RetryInterval: time.Second,
	})
	if err != nil {
		return err
	}

	fmt.Println(status)
	return nil
}

type historyCommand struct {
	Service string        `long:"service" short:"s" description:"only entries for this service"`
	Kind    string        `long:"kind" short:"k" description:"status_changed, monitoring_error or acknowledged"`
	Since   time.Duration `long:"since" description:"only entries newer than this, e.g. 24h"`
	Limit   int           `long:"limit" short:"n" default:"50" description:"maximum number of entries"`
}

// Execute prints journal entries, newest first.
func (c *historyCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return errors.NewValidationError("history.path is not configured", nil)
	}

	ctx := context.Background()
	journal, err := history.Open(ctx, cfg.History.Path, history.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer journal.Close()

	query := history.Query{ServiceID: c.Service, Kind: history.Kind(c.Kind), Limit: c.Limit}
	if c.Since > 0 {
		query.Since = time.Now().Add(-c.Since)
	}
	entries, err := journal.Recent(ctx, query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERVICE\tKIND\tDETAIL")
	for _, entry := range entries {
		detail := entry.Message
		if entry.Kind == history.KindAcknowledged {
			detail = fmt.Sprintf("auto_closed=%t", entry.AutoClosed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.At.Format("2006-01-02 15:04:05"), entry.ServiceID, entry.Kind, detail)
	}
	return w.Flush()
}

type initConfigCommand struct {
	Force bool `long:"force" short:"f" description:"overwrite an existing file"`
}

// Execute writes the default configuration.
func (c *initConfigCommand) Execute(args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	store := config.NewFileStore(path, nil)
	if store.Exists() && !c.Force {
		return errors.NewValidationError("configuration file already exists, use --force to overwrite", nil).WithContext("path", path)
	}
	if _, err := store.CreateDefault(); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration: %s\n", path)
	return nil
}

type validateConfigCommand struct{}

func (c *validateConfigCommand) Execute(args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := runner.ValidateConfigFile(path); err != nil {
		for _, problem := range config.Problems(err) {
			fmt.Printf("  - %s\n", problem)
		}
		return err
	}
	fmt.Printf("Configuration is valid: %s\n", path)
	return nil
}

type restoreConfigCommand struct{}

func (c *restoreConfigCommand) Execute(args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	store := config.NewFileStore(path, nil)
	if err := store.RestoreFromBackup(); err != nil {
		return err
	}
	fmt.Printf("Restored %s from %s\n", path, store.BackupPath())
	return nil
}

func main() {
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	parser.AddCommand("status", "Poll configured services once", "", &statusCommand{})
	parser.AddCommand("health", "Query a running watcher", "", &healthCommand{})
	parser.AddCommand("history", "Show recorded events", "", &historyCommand{})
	parser.AddCommand("init-config", "Write the default configuration", "", &initConfigCommand{})
	parser.AddCommand("validate-config", "Validate the configuration file", "", &validateConfigCommand{})
	parser.AddCommand("restore-config", "Restore the configuration from its backup", "", &restoreConfigCommand{})

	if _, err := parser.ParseArgs(argv); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Printf("Command failed: %v\n", err)
		os.Exit(1)
	}
}
