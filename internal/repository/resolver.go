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

package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/skeinhq/skein/internal/cryptoutil"
	"github.com/skeinhq/skein/internal/interpolate"
)

// Resolver adapts a VariableStore into an interpolate.Resolver, decrypting
// secret scopes with key as it resolves them.
type Resolver struct {
	store VariableStore
	key   *cryptoutil.EncryptionKey
}

// NewResolver creates a Resolver. key may be nil if no secret scope will
// ever be interpolated; Resolve returns an error for "secret"/
// "global_secret" lookups in that case rather than panicking.
func NewResolver(store VariableStore, key *cryptoutil.EncryptionKey) *Resolver {
	return &Resolver{store: store, key: key}
}

var _ interpolate.Resolver = (*Resolver)(nil)

// Resolve looks up one scope:key reference, decrypting ciphertext for the
// two secret scopes.
func (r *Resolver) Resolve(ctx context.Context, scope interpolate.Scope, workflowID, key string) (string, bool, error) {
	switch scope {
	case interpolate.ScopeVar:
		id, err := uuid.Parse(workflowID)
		if err != nil {
			return "", false, err
		}
		v, err := r.store.GetVariable(ctx, id, key)
		if err != nil {
			return "", false, err
		}
		if v == nil {
			return "", false, nil
		}
		return v.Value, true, nil

	case interpolate.ScopeSecret:
		id, err := uuid.Parse(workflowID)
		if err != nil {
			return "", false, err
		}
		s, err := r.store.GetSecret(ctx, id, key)
		if err != nil {
			return "", false, err
		}
		if s == nil {
			return "", false, nil
		}
		return r.decrypt(s.Ciphertext)

	case interpolate.ScopeGlobal:
		v, err := r.store.GetGlobalVariable(ctx, key)
		if err != nil {
			return "", false, err
		}
		if v == nil {
			return "", false, nil
		}
		return v.Value, true, nil

	case interpolate.ScopeGlobalSecret:
		s, err := r.store.GetGlobalSecret(ctx, key)
		if err != nil {
			return "", false, err
		}
		if s == nil {
			return "", false, nil
		}
		return r.decrypt(s.Ciphertext)

	default:
		return "", false, nil
	}
}

func (r *Resolver) decrypt(ciphertext string) (string, bool, error) {
	if r.key == nil {
		return "", false, errors.New("no encryption key configured for secret resolution")
	}
	plaintext, err := r.key.DecryptString(ciphertext)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}
