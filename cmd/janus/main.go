package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	command := &cobra.Command{
		Use:   "janus",
		Short: "Streaming HTTP/1.x reverse proxy",
		RunE:  run,
	}
	command.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	command.Flags().StringVarP(&listenHost, "host", "H", "127.0.0.1", "listen host")
	command.Flags().Uint16VarP(&listenPort, "port", "p", 8080, "listen port")
	command.Flags().StringVar(&logLevel, "log-level", "info", "logging level (debug, info, warn, error)")
	command.AddCommand(echoCommand())

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
