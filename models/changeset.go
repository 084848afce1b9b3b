/*
SPDX-FileCopyrightText: Copyright (c) 2026 NVIDIA CORPORATION & AFFILIATES. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package models

import "sort"

// ChangeSet tracks which fields of an entity have been written since it was
// loaded. The store persists only tracked fields and the publisher emits a
// change event only when a published field is tracked. An empty ChangeSet on
// save means "bulk save": the whole snapshot is published.
type ChangeSet struct {
	fields map[string]struct{}
}

// Add marks fields as changed.
func (c *ChangeSet) Add(fields ...string) {
	if c.fields == nil {
		c.fields = make(map[string]struct{}, len(fields))
	}
	for _, f := range fields {
		c.fields[f] = struct{}{}
	}
}

// Has reports whether field is marked changed.
func (c *ChangeSet) Has(field string) bool {
	_, ok := c.fields[field]
	return ok
}

// Len returns the number of changed fields.
func (c *ChangeSet) Len() int {
	return len(c.fields)
}

// Empty reports whether no field is marked changed.
func (c *ChangeSet) Empty() bool {
	return len(c.fields) == 0
}

// Sorted returns the changed field names in lexical order.
func (c *ChangeSet) Sorted() []string {
	out := make([]string, 0, len(c.fields))
	for f := range c.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Reset forgets all tracked changes, typically after a successful save.
func (c *ChangeSet) Reset() {
	c.fields = nil
}

// SetIfGreater assigns v to *dst and marks field changed iff v > *dst.
// A zero *dst stands for "never set".
func SetIfGreater(cs *ChangeSet, field string, dst *int64, v int64) bool {
	if v <= *dst {
		return false
	}
	*dst = v
	cs.Add(field)
	return true
}

// SetIfLess assigns v to *dst and marks field changed iff v < *dst.
func SetIfLess(cs *ChangeSet, field string, dst *int64, v int64) bool {
	if v >= *dst {
		return false
	}
	*dst = v
	cs.Add(field)
	return true
}

// SetIfChanged assigns v to *dst and marks field changed iff the value
// differs.
func SetIfChanged[T comparable](cs *ChangeSet, field string, dst *T, v T) bool {
	if v == *dst {
		return false
	}
	*dst = v
	cs.Add(field)
	return true
}

// SetAlarmsIfChanged replaces an alarm map and marks field changed iff the
// maps differ.
func SetAlarmsIfChanged(cs *ChangeSet, field string, dst *AlarmMap, v AlarmMap) bool {
	if dst.Equal(v) {
		return false
	}
	*dst = v
	cs.Add(field)
	return true
}
