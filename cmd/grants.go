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
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// grantCommands manages grant definitions from the command line.
func grantCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "manage grant definitions",
	}

	cmd.AddCommand(grantLoadCommands(b))
	cmd.AddCommand(grantListCommands(b))
	return cmd
}

// grantLoadCommands seeds grant definitions from YAML files. Each definition replaces
// the stored one with the same code.
func grantLoadCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [files...]",
		Short: "load grant definitions from yaml files",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			codes, err := b.grantflow.SeedGrantFiles(context.Background(), args...)
			for _, code := range codes {
				fmt.Printf("Loaded grant %s\n", code)
			}
			if err != nil {
				log.Fatalf("Error loading grants: %v", err)
			}
		},
	}

	return cmd
}

func grantListCommands(b *grantflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list stored grant definitions",
		Run: func(cmd *cobra.Command, args []string) {
			grants, err := b.grantflow.ListGrants(context.Background())
			if err != nil {
				log.Fatalf("Error listing grants: %v", err)
			}
			for _, g := range grants {
				data, err := json.Marshal(map[string]interface{}{"code": g.Code, "phases": len(g.Phases), "updated_at": g.UpdatedAt})
				if err != nil {
					log.Fatalf("Error printing grant: %v", err)
				}
				fmt.Println(string(data))
			}
		},
	}

	return cmd
}
