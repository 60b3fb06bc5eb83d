package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-watcher/pkg/config"
	"github.com/core-tools/hsu-watcher/pkg/runner"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the configuration file"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds"`
	Validate    bool   `long:"validate" description:"validate the configuration file and exit"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Config == "" {
		opts.Config, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Printf("Failed to resolve configuration path: %v\n", err)
			os.Exit(1)
		}
	}

	if opts.Validate {
		if err := runner.ValidateConfigFile(opts.Config); err != nil {
			fmt.Printf("Configuration is invalid: %v\n", err)
			for _, problem := range config.Problems(err) {
				fmt.Printf("  - %s\n", problem)
			}
			os.Exit(1)
		}
		fmt.Printf("Configuration is valid: %s\n", opts.Config)
		return
	}

	err = runner.Run(runner.RunOptions{
		ConfigFile:  opts.Config,
		RunDuration: opts.RunDuration,
	})
	if err != nil {
		fmt.Printf("Watcher failed: %v\n", err)
		os.Exit(1)
	}
}
