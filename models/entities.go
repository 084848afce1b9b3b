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

import (
	"encoding/json"
	"fmt"
)

// DataType describes how values of a datastream/datafeed behave: the
// per-bin aggregation, the variable class and the totalizer flag
// (is_totalizer is meaningful only with AggSum).
type DataType struct {
	ID          int64
	Name        string
	AggType     DataAggType
	VarType     VariableType
	IsTotalizer bool
}

// IsValueInteger reports whether observable values are rounded to whole
// numbers (everything but continuous variables).
func (dt *DataType) IsValueInteger() bool {
	return dt.VarType != VarContinuous
}

// Datastream is one sensor channel of a device. Its health is the worse of
// msg_health (from alarm maps) and nd_health (from data freshness).
type Datastream struct {
	ID       int64
	Name     string
	ParentID int64 // owning device

	DataTypeID int64
	DataType   *DataType

	IsRBE      bool
	TimeUpdate int64 // expected reporting period, 0 for non-periodic
	TimeChange int64 // max credible gap, required for CONTINUOUS+AVG restoration

	TillNowMargin int64 // RBE only: hold-back from wall clock
	IsEnabled     bool

	Errors   AlarmMap
	Warnings AlarmMap

	Health           Grade
	MsgHealth        Grade
	NdHealth         Grade
	TimeNdHealthErr  int64
	HealthNextEvalTs int64

	MaxRateOfChange   float64 // units per second
	MaxPlausibleValue float64
	MinPlausibleValue float64

	TsToStartWith      int64
	LastValidReadingTs int64
	CreatedTs          int64

	Changes ChangeSet
}

func (ds *Datastream) String() string {
	return fmt.Sprintf("Datastream %d %s", ds.ID, ds.Name)
}

// Disable turns the datastream off and resets all health grades, as a
// disabled stream has no opinion about its own soundness.
func (ds *Datastream) Disable() {
	if !ds.IsEnabled {
		return
	}
	SetIfChanged(&ds.Changes, "is_enabled", &ds.IsEnabled, false)
	SetIfChanged(&ds.Changes, "health", &ds.Health, GradeUndefined)
	SetIfChanged(&ds.Changes, "msg_health", &ds.MsgHealth, GradeUndefined)
	SetIfChanged(&ds.Changes, "nd_health", &ds.NdHealth, GradeUndefined)
}

// ChildHealth makes enabled datastreams participate in device health
// aggregation.
func (ds *Datastream) ChildHealth() Grade {
	return ds.Health
}

// Device is a physical unit owning datastreams. dev_ui is the unique key
// raw-data messages address it by.
type Device struct {
	ID       int64
	DevUI    string
	Name     string
	ParentID int64 // owning asset, 0 for unattached

	Errors   AlarmMap
	Warnings AlarmMap

	Health     Grade
	MsgHealth  Grade
	ChldHealth Grade

	NextUpdTs int64
	CreatedTs int64

	Changes ChangeSet
}

func (d *Device) String() string {
	return fmt.Sprintf("Device %d %s", d.ID, d.DevUI)
}

// ChildHealth makes devices participate in asset health aggregation.
func (d *Device) ChildHealth() Grade {
	return d.Health
}

// AppType names an application function. The pair (FuncName, FuncVersion on
// the application) selects the registered implementation.
type AppType struct {
	ID          int64
	Name        string
	Description string
	FuncName    string
}

// Application runs one evaluation function over its datafeeds on a schedule.
type Application struct {
	ID       int64
	TypeID   int64
	Type     *AppType
	ParentID int64 // owning asset, 0 for unattached

	TimeResample int64

	Settings json.RawMessage // validated externally against the function's schema
	State    json.RawMessage // opaque, retained between invocations

	Errors   AlarmMap
	Warnings AlarmMap

	CursorTs  int64
	IsEnabled bool

	InvocIntervalMs   int64
	CatchUpIntervalMs int64
	IsCatchingUp      bool

	FuncVersion string

	Status    NullGrade
	CurrState NullGrade

	LastStatusUpdateTs    int64
	LastCurrStateUpdateTs int64

	StatusUse    ChildUse
	CurrStateUse ChildUse

	TimeStatusStale    int64
	TimeCurrStateStale int64
	IsStatusStale      bool
	IsCurrStateStale   bool

	Health          Grade
	TimeHealthError int64

	CreatedTs int64

	Changes ChangeSet
}

func (a *Application) String() string {
	name := ""
	if a.Type != nil {
		name = a.Type.Name
	}
	return fmt.Sprintf("Application %d '%s'", a.ID, name)
}

// Disable turns the application off; a disabled application has undefined
// health.
func (a *Application) Disable() {
	if !a.IsEnabled {
		return
	}
	SetIfChanged(&a.Changes, "is_enabled", &a.IsEnabled, false)
	SetIfChanged(&a.Changes, "health", &a.Health, GradeUndefined)
}

func (a *Application) ChildHealth() Grade { return a.Health }

func (a *Application) ChildStatus() (NullGrade, ChildUse, bool) {
	return a.Status, a.StatusUse, a.IsStatusStale
}

func (a *Application) ChildCurrState() (NullGrade, ChildUse, bool) {
	return a.CurrState, a.CurrStateUse, a.IsCurrStateStale
}

// Task is the persisted scheduling record of an application. The scheduler
// mirrors IntervalMs into its due-time queue; switching between the normal
// and the catch-up interval happens by rewriting IntervalMs.
type Task struct {
	ID            int64
	ApplicationID int64
	Name          string
	IntervalMs    int64

	Changes ChangeSet
}

func (t *Task) String() string {
	return fmt.Sprintf("Task %d %s", t.ID, t.Name)
}

// Datafeed is a resampled view of a datastream (native, DatastreamID != 0)
// or a series produced by the application function (derived).
type Datafeed struct {
	ID           int64
	Name         string
	ParentID     int64 // owning application
	DatastreamID int64 // 0 for derived feeds

	DataTypeID int64
	DataType   *DataType

	DfType string

	IsRestOn  bool
	IsAugOn   bool
	AugPolicy AugPolicy

	TimeResample int64 // denormalized from the owning application

	TsToStartWith int64
	LastReadingTs int64

	Changes ChangeSet
}

func (df *Datafeed) String() string {
	return fmt.Sprintf("Datafeed %d %s", df.ID, df.Name)
}

// IsNative reports whether the feed is backed by a datastream.
func (df *Datafeed) IsNative() bool {
	return df.DatastreamID != 0
}

// Asset is a node of the monitored-equipment tree. Its grades are derived
// from children (assets, devices, applications) by the asset updater.
type Asset struct {
	ID       int64
	Name     string
	ParentID int64 // 0 for roots

	AssetType string

	Status    NullGrade
	CurrState NullGrade

	LastStatusUpdateTs    int64
	LastCurrStateUpdateTs int64

	StatusUse    ChildUse
	CurrStateUse ChildUse

	Health Grade

	NextUpdTs      int64
	ReevalFieldSet []string

	Changes ChangeSet
}

func (a *Asset) String() string {
	return fmt.Sprintf("Asset %d %s", a.ID, a.Name)
}

func (a *Asset) ChildHealth() Grade { return a.Health }

func (a *Asset) ChildStatus() (NullGrade, ChildUse, bool) {
	return a.Status, a.StatusUse, false
}

func (a *Asset) ChildCurrState() (NullGrade, ChildUse, bool) {
	return a.CurrState, a.CurrStateUse, false
}
