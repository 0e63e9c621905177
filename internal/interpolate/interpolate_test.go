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

package interpolate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skeinhq/skein/internal/interpolate"
)

type mapResolver map[string]string

func key(scope interpolate.Scope, workflowID, k string) string {
	return string(scope) + "|" + workflowID + "|" + k
}

func (m mapResolver) Resolve(ctx context.Context, scope interpolate.Scope, workflowID, k string) (string, bool, error) {
	v, ok := m[key(scope, workflowID, k)]
	return v, ok, nil
}

func TestString_ResolvesAllScopes(t *testing.T) {
	resolver := mapResolver{
		key(interpolate.ScopeVar, "wf-1", "region"):           "us-east-1",
		key(interpolate.ScopeSecret, "wf-1", "api_key"):       "sk-live-abcd",
		key(interpolate.ScopeGlobal, "", "base_url"):          "https://api.example.com",
		key(interpolate.ScopeGlobalSecret, "", "signing_key"): "shh",
	}
	in := interpolate.New(resolver, nil)

	got := in.String(context.Background(),
		"region=${var:region} key=${secret:api_key} url=${global:base_url} sign=${global_secret:signing_key}",
		"wf-1")

	assert.Equal(t, "region=us-east-1 key=sk-live-abcd url=https://api.example.com sign=shh", got)
}

func TestString_MissingReferenceLeavesPlaceholder(t *testing.T) {
	in := interpolate.New(mapResolver{}, nil)

	got := in.String(context.Background(), "value=${var:missing}", "wf-1")

	assert.Equal(t, "value=${var:missing}", got)
}

func TestString_WorkflowScopedWithoutWorkflowIDLeavesPlaceholder(t *testing.T) {
	in := interpolate.New(mapResolver{}, nil)

	got := in.String(context.Background(), "${secret:api_key}", "")

	assert.Equal(t, "${secret:api_key}", got)
}

func TestDict_RecursesThroughMapsAndSlices(t *testing.T) {
	resolver := mapResolver{
		key(interpolate.ScopeVar, "wf-1", "name"): "alice",
	}
	in := interpolate.New(resolver, nil)

	input := map[string]any{
		"greeting": "hello ${var:name}",
		"tags":     []any{"a", "${var:name}"},
		"count":    42,
	}

	got := in.Dict(context.Background(), input, "wf-1").(map[string]any)

	assert.Equal(t, "hello alice", got["greeting"])
	assert.Equal(t, []any{"a", "alice"}, got["tags"])
	assert.Equal(t, 42, got["count"])
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, interpolate.HasPlaceholder("${var:x}"))
	assert.False(t, interpolate.HasPlaceholder("no placeholders here"))
}
