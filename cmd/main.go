/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/grantflow"
	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/internal/notification"
)

// Grantflow represents the CLI application, encapsulating the root Cobra command.
type Grantflow struct {
	cmd *cobra.Command
}

// grantflowInstance holds the service and its configuration for the subcommands.
type grantflowInstance struct {
	grantflow *grantflow.Grantflow
	cnf       *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service before any command runs.
func preRun(app *grantflowInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newGrantflow, err := setupGrantflow(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.grantflow = newGrantflow
		app.cnf = cnf
		return nil
	}
}

// setupGrantflow connects to the data source and wires the use-cases to it.
func setupGrantflow(cfg *config.Configuration) (*grantflow.Grantflow, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newGrantflow, err := grantflow.NewGrantflow(db)
	if err != nil {
		return nil, fmt.Errorf("error creating grantflow: %v", err)
	}
	return newGrantflow, nil
}

// NewCLI creates the command-line interface with the server, workers, migrate, grants
// and config subcommands.
func NewCLI() *Grantflow {
	var configFile string
	b := &grantflowInstance{}

	var rootCmd = &cobra.Command{
		Use:   "grantflow",
		Short: "Grant application workflow service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./grantflow.json", "Configuration file for grantflow")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(grantCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Grantflow{cmd: rootCmd}
}

func (w Grantflow) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
