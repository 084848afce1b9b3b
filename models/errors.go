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

import "errors"

// Error kinds shared across the engine. Callers classify with errors.Is.
var (
	// ErrValidation covers bad condition parameters, missing time_change
	// where restoration needs it, and similar configuration faults.
	ErrValidation = errors.New("validation error")

	// ErrNotFound reports a missing device, application or task; the
	// offending message or tick is dropped without retry.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity reports a duplicate-key write. The executor maps it to
	// excep_health = ERROR and rolls the transaction back.
	ErrIntegrity = errors.New("integrity error")

	// ErrRestorationBatchOverflow reports that the synthesizer could not
	// find enough usable readings after the maximum batch extension.
	ErrRestorationBatchOverflow = errors.New("restoration batch overflow")

	// ErrUnknownAggregation is a programmer error: a data type and
	// aggregation combination the synthesizer has no dispatch for.
	ErrUnknownAggregation = errors.New("unknown aggregation")
)
