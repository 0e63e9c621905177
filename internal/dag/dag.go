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

// Package dag validates a workflow's task dependency graph and produces the
// parallel execution layers the task runner consumes.
package dag

import (
	"sort"

	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

// Node is the minimal shape the validator needs from a task.
type Node struct {
	Name         string
	Dependencies []string
}

// Layers computes in-degree per node and emits nodes whose dependencies are
// already satisfied, one layer at a time, until every node has been placed.
// Intra-layer order is the order nodes were passed in, for deterministic
// iteration in tests and logs; callers must not treat it as an execution
// guarantee.
func Layers(nodes []Node) ([][]string, error) {
	byName := make(map[string]Node, len(nodes))
	order := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byName[n.Name] = n
		order[n.Name] = i
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))

	for _, n := range nodes {
		if _, ok := inDegree[n.Name]; !ok {
			inDegree[n.Name] = 0
		}
		for _, dep := range n.Dependencies {
			if _, ok := byName[dep]; !ok {
				return nil, &skeinerrors.DAGValidationError{
					Reason:         "unknown_dependency",
					TaskName:       n.Name,
					DependencyName: dep,
				}
			}
			inDegree[n.Name]++
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}

	var layers [][]string
	var current []string
	for _, n := range nodes {
		if inDegree[n.Name] == 0 {
			current = append(current, n.Name)
		}
	}
	sortByOriginalOrder(current, order)

	processed := 0
	for len(current) > 0 {
		layers = append(layers, current)
		processed += len(current)

		var next []string
		for _, name := range current {
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sortByOriginalOrder(next, order)
		current = next
	}

	if processed != len(nodes) {
		return nil, &skeinerrors.DAGValidationError{Reason: "cycle"}
	}

	return layers, nil
}

// Validate reports whether the graph induced by nodes is acyclic and every
// dependency name resolves to a sibling task; it returns the same error
// Layers would, without retaining the computed layers.
func Validate(nodes []Node) error {
	_, err := Layers(nodes)
	return err
}

func sortByOriginalOrder(names []string, order map[string]int) {
	sort.Slice(names, func(i, j int) bool {
		return order[names[i]] < order[names[j]]
	})
}
