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

// Package interpolate resolves ${scope:key} placeholders against the
// workflow variable/secret store. It is the textual counterpart to
// internal/dynamictask's {{path}} interpolation: this package always
// substitutes strings (it rewrites the string leaves of a payload tree),
// while dynamictask substitutes JSON values.
package interpolate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Scope identifies which store a placeholder resolves against.
type Scope string

const (
	ScopeVar          Scope = "var"
	ScopeSecret       Scope = "secret"
	ScopeGlobal       Scope = "global"
	ScopeGlobalSecret Scope = "global_secret"
)

// Resolver looks up a value for one scope:key pair. ok is false when the
// reference does not exist; callers must not treat an empty string as
// equivalent to "not found".
type Resolver interface {
	Resolve(ctx context.Context, scope Scope, workflowID, key string) (value string, ok bool, err error)
}

var placeholderPattern = regexp.MustCompile(`\$\{([^:}]+):([^}]+)\}`)

// Interpolator substitutes ${scope:key} placeholders using a Resolver.
type Interpolator struct {
	resolver Resolver
	logger   *slog.Logger
}

// New creates an Interpolator backed by resolver. A nil logger disables
// the missing-reference warning log (it is still recorded via the return
// value's unchanged placeholder).
func New(resolver Resolver, logger *slog.Logger) *Interpolator {
	return &Interpolator{resolver: resolver, logger: logger}
}

// String resolves every ${scope:key} placeholder in text. A reference that
// cannot be resolved — unknown scope, missing key, or lookup error — is
// left in place verbatim and a warning is logged; this is intentional, so
// configuration drift surfaces instead of being silently swallowed into an
// empty string.
func (in *Interpolator) String(ctx context.Context, text string, workflowID string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		scope := Scope(sub[1])
		key := sub[2]

		if (scope == ScopeVar || scope == ScopeSecret) && workflowID == "" {
			in.warn(scope, key, "workflow-scoped reference used without a workflow id")
			return match
		}

		value, ok, err := in.resolver.Resolve(ctx, scope, workflowID, key)
		if err != nil {
			in.warn(scope, key, err.Error())
			return match
		}
		if !ok {
			in.warn(scope, key, "not found")
			return match
		}
		return value
	})
}

func (in *Interpolator) warn(scope Scope, key, reason string) {
	if in.logger == nil {
		return
	}
	in.logger.Warn("variable not found, leaving placeholder",
		"scope", string(scope), "key", key, "reason", reason)
}

// Dict recursively interpolates every string leaf of a map/slice/string
// value tree, preserving the shape of non-string leaves untouched.
func (in *Interpolator) Dict(ctx context.Context, value any, workflowID string) any {
	switch v := value.(type) {
	case string:
		return in.String(ctx, v, workflowID)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = in.Dict(ctx, child, workflowID)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = in.Dict(ctx, child, workflowID)
		}
		return out
	default:
		return v
	}
}

// HasPlaceholder reports whether text contains at least one ${scope:key}
// reference, useful to short-circuit interpolation of static payloads.
func HasPlaceholder(text string) bool {
	return strings.Contains(text, "${") && placeholderPattern.MatchString(text)
}
