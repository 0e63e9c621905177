// Copyright 2025 Tom Barlow
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

// Package dynamictask implements map/reduce dynamic task groups: fan-out
// over an input array with per-item {{path}} template interpolation, and a
// single-reducer pass over the fanned-out results.
package dynamictask

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRegex = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// InterpolateTemplate resolves every {{path}} placeholder in template
// against context, walking context by dotted path. A quoted placeholder
// ("{{path}}") is replaced with the JSON encoding of the resolved value,
// preserving its type; a bare placeholder ({{path}}) is replaced with the
// value's string form. A path that doesn't resolve is left untouched.
func InterpolateTemplate(template map[string]any, context map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(template)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing template: %w", err)
	}

	interpolated, err := interpolateString(string(raw), context)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(interpolated), &result); err != nil {
		return nil, fmt.Errorf("parsing interpolated template: %w", err)
	}
	return result, nil
}

func interpolateString(templateStr string, context map[string]any) (string, error) {
	matches := placeholderRegex.FindAllStringSubmatch(templateStr, -1)
	seen := make(map[string]bool, len(matches))

	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		if seen[path] {
			continue
		}
		seen[path] = true

		value, ok := walkPath(context, path)
		if !ok {
			continue
		}

		quoted := fmt.Sprintf(`"{{%s}}"`, path)
		if strings.Contains(templateStr, quoted) {
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", fmt.Errorf("encoding value for %q: %w", path, err)
			}
			templateStr = strings.ReplaceAll(templateStr, quoted, string(encoded))
		}

		bare := fmt.Sprintf(`{{%s}}`, path)
		templateStr = strings.ReplaceAll(templateStr, bare, stringForm(value))
	}

	return templateStr, nil
}

// walkPath traverses context by splitting path on ".". Each segment
// indexes into a map[string]any, or — for numeric segments — a []any.
func walkPath(context map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = context

	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

func stringForm(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return strings.Trim(string(b), `"`)
	}
}
