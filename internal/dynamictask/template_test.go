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

package dynamictask_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinhq/skein/internal/dynamictask"
)

func TestInterpolateTemplate_QuotedPreservesType(t *testing.T) {
	template := map[string]any{
		"index":   "{{index}}",
		"payload": map[string]any{"id": "{{item.id}}"},
	}
	context := map[string]any{
		"index": 3,
		"item":  map[string]any{"id": 42},
	}

	got, err := dynamictask.InterpolateTemplate(template, context)
	require.NoError(t, err)

	assert.Equal(t, float64(3), got["index"])
	payload := got["payload"].(map[string]any)
	assert.Equal(t, float64(42), payload["id"])
}

func TestInterpolateTemplate_BareBecomesString(t *testing.T) {
	template := map[string]any{
		"message": "item #{{index}} is {{item.name}}",
	}
	context := map[string]any{
		"index": 0,
		"item":  map[string]any{"name": "widget"},
	}

	got, err := dynamictask.InterpolateTemplate(template, context)
	require.NoError(t, err)

	assert.Equal(t, "item #0 is widget", got["message"])
}

func TestInterpolateTemplate_UnresolvedLeavesPlaceholder(t *testing.T) {
	template := map[string]any{"value": "{{missing.path}}"}

	got, err := dynamictask.InterpolateTemplate(template, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, "{{missing.path}}", got["value"])
}

func TestInterpolateTemplate_ArrayIndexPath(t *testing.T) {
	template := map[string]any{"first": "{{items.0}}"}
	context := map[string]any{"items": []any{"a", "b"}}

	got, err := dynamictask.InterpolateTemplate(template, context)
	require.NoError(t, err)

	assert.Equal(t, "a", got["first"])
}
