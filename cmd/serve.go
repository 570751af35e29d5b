// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/nathanielng/portfolio-analyzer/common"
	"github.com/nathanielng/portfolio-analyzer/handler"
	"github.com/nathanielng/portfolio-analyzer/middleware"
	"github.com/nathanielng/portfolio-analyzer/observability/opentelemetry"
	"github.com/nathanielng/portfolio-analyzer/portfolio"
	"github.com/nathanielng/portfolio-analyzer/router"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	viper.BindEnv("server.refresh_interval", "REFRESH_INTERVAL")
	serveCmd.Flags().Duration("refresh-interval", 1*time.Hour, "How often cached prices and the risk report are rebuilt")
	viper.BindPFlag("server.refresh_interval", serveCmd.Flags().Lookup("refresh-interval"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portfolio-analyzer server",
	Long: `Run an HTTP server that keeps prices and the portfolio risk report
warm in memory and serves them as JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Error().Err(err).Msg("could not setup tracing; continuing without it")
		} else {
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Error().Err(err).Msg("could not shutdown tracing")
				}
			}()
		}

		symbols := loadSymbols(args)
		benchmark := viper.GetString("analyze.benchmark")

		h := &handler.Handler{
			Fetcher:   buildFetcher(""),
			Converter: buildConverter(),
			Analyzer:  portfolio.NewAnalyzer(viper.GetFloat64("analyze.risk_free_rate"), benchmark),
			Symbols:   symbols,
			Benchmark: benchmark,
		}

		app := fiber.New()

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c
			fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown server")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowHeaders: "*",
			AllowMethods: "GET,HEAD",
		}))
		app.Use(middleware.NewLogger())

		router.SetupRoutes(app, h)

		// warm the cache before accepting traffic, then refresh on a schedule
		h.Refresh(context.Background())

		scheduler := gocron.NewScheduler(common.GetTimezone())
		scheduler.Every(viper.GetDuration("server.refresh_interval")).Do(func() {
			h.Refresh(context.Background())
		})
		scheduler.StartAsync()

		if err := app.Listen(fmt.Sprintf(":%d", viper.GetInt("server.port"))); err != nil {
			log.Fatal().Err(err).Msg("could not start server")
		}
	},
}
