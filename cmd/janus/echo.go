package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/janusproxy/janus/echo"
)

// echoCommand runs the sample upstream used for manual proxy testing.
func echoCommand() *cobra.Command {
	var (
		host string
		port uint16
	)
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a sample echo upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := &http.Server{
				Addr:    net.JoinHostPort(host, strconv.Itoa(int(port))),
				Handler: echo.NewHandler(),
			}
			serveErr := make(chan error, 1)
			go func() {
				serveErr <- server.ListenAndServe()
			}()
			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
				return server.Shutdown(context.Background())
			}
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "listen host")
	cmd.Flags().Uint16VarP(&port, "port", "p", 9001, "listen port")
	return cmd
}
