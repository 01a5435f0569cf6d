// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/gorse-io/usercf/cmd/version"
	"github.com/gorse-io/usercf/common/log"
	"github.com/gorse-io/usercf/config"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "usercf",
	Short: "User-based collaborative filtering: rating prediction and offline evaluation.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer log.Sync()
		metricsPath, _ := cmd.Flags().GetString("metrics-path")
		if metricsPath == "" {
			return nil
		}
		if err := prometheus.WriteToTextfile(metricsPath, prometheus.DefaultGatherer); err != nil {
			return errors.Annotatef(err, "failed to write metrics to %s", metricsPath)
		}
		log.Logger().Info("write metrics", zap.String("path", metricsPath))
		return nil
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the version of usercf",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().String("metrics-path", "", "write prometheus metrics to a text file after the command")
	rootCommand.AddCommand(versionCommand, runCommand, splitCommand, importCommand)
}

// loadConfig loads the configuration given by the --config flag.
func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
