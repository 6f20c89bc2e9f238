package main

import (
	"fmt"
	"os"
	"strings"

	"fusion-trader/internal/cli"
	"fusion-trader/internal/config"
	"fusion-trader/internal/logging"
)

// configDirFromArgs scans the raw arguments for the --config flag. Cobra
// parses flags after the config is already loaded, so both forms it accepts
// are recognized here.
func configDirFromArgs(args []string) string {
	configDir := ""
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			configDir = args[i+1]
		case strings.HasPrefix(arg, "--config="):
			configDir = strings.TrimPrefix(arg, "--config=")
		}
	}
	return configDir
}

func main() {
	cfg, err := config.Load(configDirFromArgs(os.Args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
