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

package errors_test

import (
	"errors"
	"strings"
	"testing"

	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

func TestDAGValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *skeinerrors.DAGValidationError
		want string
	}{
		{
			name: "unknown dependency",
			err:  &skeinerrors.DAGValidationError{Reason: "unknown_dependency", TaskName: "b", DependencyName: "ghost"},
			want: `task "b" depends on unknown task "ghost"`,
		},
		{
			name: "cycle",
			err:  &skeinerrors.DAGValidationError{Reason: "cycle"},
			want: "dependency cycle detected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.want) {
				t.Errorf("Error() = %q, want to contain %q", got, tt.want)
			}
		})
	}
}

func TestStateTransitionError_Error(t *testing.T) {
	err := &skeinerrors.StateTransitionError{Entity: "workflow", Op: "resume", FromStatus: "running"}
	want := `cannot resume workflow from status "running"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTaskFailedError(t *testing.T) {
	cause := errors.New("boom")
	err := &skeinerrors.TaskFailedError{TaskName: "fetch", Attempts: 3, Cause: cause}

	if !strings.Contains(err.Error(), "fetch") || !strings.Contains(err.Error(), "3 attempt") {
		t.Errorf("Error() = %q, missing task name or attempt count", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestEncryptionError(t *testing.T) {
	cause := errors.New("cipher: message authentication failed")
	err := &skeinerrors.EncryptionError{Op: "decrypt", Cause: cause}

	if !strings.Contains(err.Error(), "decrypt failed") {
		t.Errorf("Error() = %q, want to contain 'decrypt failed'", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestRepositoryError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &skeinerrors.RepositoryError{Op: "create workflow", Cause: cause}

	if !strings.Contains(err.Error(), "create workflow") {
		t.Errorf("Error() = %q, want to contain operation", err.Error())
	}
	if errors.Unwrap(err) != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestIdempotencyConflictError(t *testing.T) {
	err := &skeinerrors.IdempotencyConflictError{Key: "wf:task:abcd", Status: "processing"}
	want := `idempotency key "wf:task:abcd" is already processing`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
