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

package grantflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

// ParseGrantDefinitions reads one or more YAML documents, each a grant definition, and
// checks that every definition compiles.
func ParseGrantDefinitions(r io.Reader) ([]*model.Grant, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var grants []*model.Grant
	for {
		var grant model.Grant
		err := dec.Decode(&grant)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("grant definition %d: %w", len(grants)+1, err)
		}
		if strings.TrimSpace(grant.Code) == "" {
			return nil, fmt.Errorf("grant definition %d: %w: code is required", len(grants)+1, workflow.ErrInvalidDefinition)
		}
		if _, err := workflow.Compile(&grant); err != nil {
			return nil, err
		}
		grants = append(grants, &grant)
	}
	return grants, nil
}

// SeedGrantFiles loads every definition in the given YAML files and seeds them.
// It returns the codes seeded.
func (g *Grantflow) SeedGrantFiles(ctx context.Context, paths ...string) ([]string, error) {
	var codes []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return codes, err
		}
		grants, err := ParseGrantDefinitions(f)
		f.Close()
		if err != nil {
			return codes, fmt.Errorf("%s: %w", path, err)
		}

		for _, grant := range grants {
			if err := g.SeedGrant(ctx, grant); err != nil {
				return codes, fmt.Errorf("%s: %w", path, err)
			}
			codes = append(codes, grant.Code)
		}
	}
	return codes, nil
}
