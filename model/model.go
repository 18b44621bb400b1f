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

package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// SegregationRef derives the FIFO key that groups events for one logical entity.
// The key is "<ref>-<code>", e.g. a client reference and the grant code it applies to.
func SegregationRef(ref, code string) string {
	ref = strings.TrimSpace(ref)
	code = strings.TrimSpace(code)
	if ref == "" && code == "" {
		return ""
	}
	return fmt.Sprintf("%s-%s", ref, code)
}
