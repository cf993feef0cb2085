package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/siilo/siilo/cmd/flags"
	"github.com/siilo/siilo/httpserver"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "siilo-gateway",
		Usage: "Serve the blob storage API over the configured backends",
		Flags: append(append([]cli.Flag{}, flags.CommonFlags...), flags.ServerFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			st, err := flags.BuildStore(cCtx.Context, cCtx, logger)
			if err != nil {
				logger.Error("Failed to configure storage backends", "err", err)
				return err
			}
			if len(st.Schemes()) == 0 {
				logger.Warn("No backend bindings configured, every request will fail scheme resolution")
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, httpserver.NewHandler(st, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "schemes", st.Schemes())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
