// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ordinal builds the static category/group structure for
// qualitative (ordinal) measurement data.
//
// An ordinal observation is only known to belong to an ordered category:
// it cannot be compared numerically against a simulated trajectory.
// Measurements are partitioned into groups, each group owning a dense
// chain of ordered categories. Different groups are independent scaling
// problems with no ordering relation between them.
//
// The index is built once from measurement and parameter metadata and is
// reused unchanged across every outer-parameter evaluation.
package ordinal

import (
	"fmt"
	"sort"
)

// QualitativeScaling is the parameter-table type tag marking rows that
// declare an ordinal category.
const QualitativeScaling = "qualitative_scaling"

// MeasurementRecord mirrors one row of a PEtab-style measurement table.
// CategoryID references a ParameterRecord of type QualitativeScaling.
// A zero Weight means unit weight.
type MeasurementRecord struct {
	ObservableID string
	ConditionID  string
	Time         float64
	CategoryID   string
	Weight       float64
}

// ParameterRecord mirrors one row of a PEtab-style parameter table.
// Only rows with Type == QualitativeScaling declare categories; other
// rows are ignored by Build.
type ParameterRecord struct {
	ParameterID  string
	Estimate     bool
	Hierarchical bool
	Type         string
	Group        int // integer ≥ 1
	Category     int // ordinal rank ≥ 1, dense ascending within a group
}

// Measurement is one ordinal observation after index construction.
// The simulated value it is compared against is supplied separately on
// every evaluation, aligned by the measurement's position in the index.
type Measurement struct {
	ObservableID string
	ConditionID  string
	Time         float64
	Weight       float64
	Group        int
	Rank         int // category rank within the group
}

// Category is one ordinal bucket: its rank and the index positions of
// the measurements assigned to it. A category may be empty; it still
// occupies its place in the ordering chain.
type Category struct {
	Rank         int
	Measurements []int
}

// Group is a chain of mutually ordered categories. Categories are stored
// by ascending rank, ranks are dense starting at 1.
type Group struct {
	ID         int
	Categories []Category
}

// Index is the immutable category/group structure shared by all inner
// solves. Measurements are stored in a single flat slice; simulated
// values and sensitivities passed to the solver must be aligned with it.
type Index struct {
	Groups       []Group
	Measurements []Measurement
}

// ConfigurationError reports malformed category/group metadata. It is
// fatal: the index cannot be built and no optimization may start.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "ordinal: " + e.Reason
}

func configErrf(format string, a ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, a...)}
}

// Build constructs the index from measurement and parameter metadata.
//
// It fails with *ConfigurationError when a measurement references an
// undeclared category, a declared category has a non-positive group or
// rank, ranks within a group are not a contiguous ascending sequence
// starting at 1, or a measurement carries a negative weight.
func Build(measurements []MeasurementRecord, parameters []ParameterRecord) (*Index, error) {

	type catKey struct {
		group, rank int
	}

	cats := make(map[string]catKey)
	ranks := make(map[int]map[int]bool) // group → declared ranks

	for _, p := range parameters {
		if p.Type != QualitativeScaling {
			continue
		}
		if p.Group < 1 {
			return nil, configErrf("parameter %q: group must be ≥ 1, got %d", p.ParameterID, p.Group)
		}
		if p.Category < 1 {
			return nil, configErrf("parameter %q: category rank must be ≥ 1, got %d", p.ParameterID, p.Category)
		}
		if _, dup := cats[p.ParameterID]; dup {
			return nil, configErrf("parameter %q declared twice", p.ParameterID)
		}
		if ranks[p.Group] == nil {
			ranks[p.Group] = make(map[int]bool)
		}
		if ranks[p.Group][p.Category] {
			return nil, configErrf("group %d: rank %d declared twice", p.Group, p.Category)
		}
		ranks[p.Group][p.Category] = true
		cats[p.ParameterID] = catKey{p.Group, p.Category}
	}

	if len(cats) == 0 {
		return nil, configErrf("no %s parameters declared", QualitativeScaling)
	}

	// Ranks within each group must be dense: 1, 2, ..., n with no gaps.
	groupIDs := make([]int, 0, len(ranks))
	for id, rs := range ranks {
		for r := 1; r <= len(rs); r++ {
			if !rs[r] {
				return nil, configErrf("group %d: ranks are not dense, missing rank %d", id, r)
			}
		}
		groupIDs = append(groupIDs, id)
	}
	sort.Ints(groupIDs)

	idx := &Index{
		Groups:       make([]Group, 0, len(groupIDs)),
		Measurements: make([]Measurement, 0, len(measurements)),
	}
	slot := make(map[int]int, len(groupIDs)) // group id → position in idx.Groups
	for _, id := range groupIDs {
		slot[id] = len(idx.Groups)
		g := Group{ID: id, Categories: make([]Category, len(ranks[id]))}
		for r := range g.Categories {
			g.Categories[r].Rank = r + 1
		}
		idx.Groups = append(idx.Groups, g)
	}

	for i, m := range measurements {
		key, ok := cats[m.CategoryID]
		if !ok {
			return nil, configErrf("measurement %d (%s/%s): category %q not declared",
				i, m.ObservableID, m.ConditionID, m.CategoryID)
		}
		if m.Weight < 0 {
			return nil, configErrf("measurement %d (%s/%s): negative weight %g",
				i, m.ObservableID, m.ConditionID, m.Weight)
		}
		w := m.Weight
		if w == 0 {
			w = 1
		}
		pos := len(idx.Measurements)
		idx.Measurements = append(idx.Measurements, Measurement{
			ObservableID: m.ObservableID,
			ConditionID:  m.ConditionID,
			Time:         m.Time,
			Weight:       w,
			Group:        key.group,
			Rank:         key.rank,
		})
		g := &idx.Groups[slot[key.group]]
		c := &g.Categories[key.rank-1]
		c.Measurements = append(c.Measurements, pos)
	}

	return idx, nil
}
