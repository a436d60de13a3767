package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/kestrelhw/vcnsim/internal/api"
	"github.com/kestrelhw/vcnsim/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run a frame with a monitoring HTTP endpoint",
		Flags: append(append(pipelineFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := newLogger()
			ctx = logger.WithContext(ctx, log)
			applyServeConfig(cmd, loadFileConfig(), &addr)

			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			lay, err := loadLayer()
			if err != nil {
				return err
			}
			sys, err := buildSystem(cfg, lay, log)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan error, 1)
			go func() {
				_, err := sys.Run(runCtx, uint64(maxCycles))
				done <- err
			}()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(sys).Register(e)
			log.Info("starting monitor", "address", addr, "groups", cfg.GroupsPerFrame())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			serveErr := sc.Start(ctx, e)

			cancel()
			if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Warn("frame run ended with error", "err", runErr)
			}
			return serveErr
		},
	}
}
