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

/*
Package main provides the CLI commands for preparing the document store.
*/
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/grantflow/database"
)

// migrateCommands creates the root command for store preparation.
func migrateCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "prepare grantflow collections",
	}

	cmd.AddCommand(migrateUpCommands(b))
	return cmd
}

// migrateUpCommands creates the collection indexes. Running it again is a no-op.
func migrateUpCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			db, err := database.GetDBConnection(b.cnf)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}

			if err := db.EnsureIndexes(ctx); err != nil {
				log.Printf("Error creating indexes: %v", err)
				return
			}
			fmt.Println("Indexes are up to date!")
		},
	}

	return cmd
}
