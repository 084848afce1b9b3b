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

// Package synth turns classified datastream readings into resampled datafeed
// readings: per-bin aggregation, augmentation of silent report-by-exception
// periods and restoration of gaps by interpolation.
package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"go.corp.nvidia.com/monapps/models"
	"go.corp.nvidia.com/monapps/store"
	"go.corp.nvidia.com/monapps/utils/timegrid"
)

// maxRestorationGrowth caps how far a restoration batch may be extended
// while hunting for enough usable readings (doublings of the extra-reading
// count, 1 -> 1024).
const maxRestorationGrowth = 512

// Committer publishes an entity's tracked changes after a successful
// transaction and resets its change set.
type Committer interface {
	Commit(entity any)
}

// Synthesizer advances native datafeeds batch by batch. Each batch runs in
// its own transaction with the datafeed and its datastream locked.
type Synthesizer struct {
	st        *store.Store
	logger    *slog.Logger
	committer Committer

	now        func() int64
	batchLimit int
}

// NewSynthesizer builds a synthesizer. committer may be nil when change
// events are not published.
func NewSynthesizer(st *store.Store, logger *slog.Logger, committer Committer) *Synthesizer {
	return &Synthesizer{
		st:         st,
		logger:     logger,
		committer:  committer,
		now:        timegrid.NowMs,
		batchLimit: models.NumMaxDsReadingsToProcess,
	}
}

// feedRun is the working state of one batch.
type feedRun struct {
	app *models.Application
	df  *models.Datafeed
	ds  *models.Datastream

	now      int64
	resample int64

	startRts, endRts int64
	batchEndRts      int64
	ndPeriodOpen     bool

	readings []models.DsReading
}

func (r *feedRun) augmented() bool {
	return r.ds.IsRBE && r.df.IsAugOn
}

// SynthesizeFeed processes one batch for a native datafeed of app and
// reports whether more batches remain, i.e. the feed is still catching up.
func (s *Synthesizer) SynthesizeFeed(ctx context.Context, app *models.Application, dfID int64) (bool, error) {
	var catchingUp bool
	var saved []any

	err := s.st.WithTx(ctx, func(tx pgx.Tx) error {
		catchingUp = false
		saved = nil

		df, err := store.GetDatafeedForUpdate(ctx, tx, dfID)
		if err != nil {
			return err
		}
		if !df.IsNative() {
			return fmt.Errorf("%w: %s is not native", models.ErrValidation, df)
		}
		ds, err := store.GetDatastreamForUpdate(ctx, tx, df.DatastreamID)
		if err != nil {
			return err
		}

		r := &feedRun{app: app, df: df, ds: ds, now: s.now(), resample: df.TimeResample}
		ok, err := s.resolveWindow(ctx, tx, r)
		if err != nil || !ok {
			return err
		}
		if ok, err = s.loadBatch(ctx, tx, r, s.batchLimit); err != nil || !ok {
			return err
		}

		m, err := s.buildReadingMap(ctx, tx, r)
		if err != nil {
			return err
		}
		if err = s.persist(ctx, tx, r, m); err != nil {
			return err
		}

		catchingUp = r.batchEndRts < r.endRts
		saved = append(saved, df, ds)
		return nil
	})
	if err != nil {
		return false, err
	}

	s.commitSaved(saved)
	return catchingUp, nil
}

// resolveWindow computes the half-open processing window (startRts, endRts].
// For an augmented stream the start additionally skips over dead gaps: when
// the window opens inside a nodata period (or nothing was ever aggregated
// yet) it jumps to the bin just before the first reading ahead.
func (s *Synthesizer) resolveWindow(ctx context.Context, tx pgx.Tx, r *feedRun) (bool, error) {
	r.startRts = max(r.app.CursorTs, r.df.TsToStartWith)

	if r.augmented() {
		lastDsr, err := store.LastDsReadingAtOrBefore(ctx, tx, r.ds.ID, r.startRts)
		if err != nil {
			return false, err
		}
		lastNdm, err := store.LastNdMarkerAtOrBefore(ctx, tx, r.ds.ID, r.startRts)
		if err != nil {
			return false, err
		}
		r.ndPeriodOpen = lastNdm != nil && (lastDsr == nil || lastDsr.Time <= lastNdm.Time)

		firstDsr, err := store.FirstDsReadingAfter(ctx, tx, r.ds.ID, r.startRts)
		if err != nil {
			return false, err
		}
		firstNdm, err := store.FirstNdMarkerAfter(ctx, tx, r.ds.ID, r.startRts)
		if err != nil {
			return false, err
		}
		if firstDsr != nil {
			skipAhead := r.ndPeriodOpen ||
				(r.df.DataType.AggType == models.AggLast && lastDsr == nil) ||
				(firstNdm != nil && timegrid.Ceil(firstNdm.Time-r.resample, r.resample) == r.startRts)
			if skipAhead {
				r.startRts = timegrid.Ceil(firstDsr.Time-r.resample, r.resample)
			}
		}
	}

	lastDsrAhead, err := store.LastDsReadingAfter(ctx, tx, r.ds.ID, r.startRts)
	if err != nil {
		return false, err
	}
	if r.augmented() && r.df.AugPolicy == models.TillNow {
		r.endRts = timegrid.Ceil(r.now-r.ds.TillNowMargin, r.resample)
		lastNdmAhead, err := store.LastNdMarkerAfter(ctx, tx, r.ds.ID, r.startRts)
		if err != nil {
			return false, err
		}
		// An open trailing nodata period pins the window at the marker:
		// augmenting past it would invent data the device disclaimed.
		if lastNdmAhead != nil && (lastDsrAhead == nil || lastDsrAhead.Time <= lastNdmAhead.Time) {
			r.endRts = min(r.endRts, timegrid.Ceil(lastNdmAhead.Time, r.resample))
		}
	} else {
		if lastDsrAhead == nil {
			return false, nil
		}
		r.endRts = timegrid.Ceil(lastDsrAhead.Time, r.resample)
	}

	return r.startRts < r.endRts, nil
}

// loadBatch pulls up to limit readings of the window and settles
// batchEndRts, the grid point this batch will not reach past.
func (s *Synthesizer) loadBatch(ctx context.Context, tx pgx.Tx, r *feedRun, limit int) (bool, error) {
	var err error
	if r.augmented() {
		r.batchEndRts = min(r.startRts+int64(limit)*r.resample, r.endRts)
		r.readings, err = store.ListDsReadings(ctx, tx, r.ds.ID, r.startRts, r.batchEndRts, limit)
		if err != nil {
			return false, err
		}
		if len(r.readings) == 0 {
			// Only a till-now policy has anything to do with pure silence.
			return r.df.AugPolicy == models.TillNow, nil
		}
		if len(r.readings) == limit {
			r.batchEndRts = min(r.batchEndRts, timegrid.Ceil(r.readings[len(r.readings)-1].Time, r.resample))
		}
		return true, nil
	}

	r.readings, err = store.ListDsReadings(ctx, tx, r.ds.ID, r.startRts, r.endRts, limit)
	if err != nil {
		return false, err
	}
	if len(r.readings) == 0 {
		return false, nil
	}
	r.batchEndRts = r.endRts
	if len(r.readings) == limit {
		r.batchEndRts = min(timegrid.Ceil(r.readings[len(r.readings)-1].Time, r.resample), r.endRts)
	}
	return true, nil
}

// buildReadingMap dispatches on the datafeed's aggregation and variable
// type.
func (s *Synthesizer) buildReadingMap(ctx context.Context, tx pgx.Tx, r *feedRun) (readingMap, error) {
	dt := r.df.DataType
	switch {
	case dt.AggType == models.AggAvg:
		if dt.VarType != models.VarContinuous {
			return nil, fmt.Errorf("%w: AVG over %s", models.ErrUnknownAggregation, r.df)
		}
		return s.buildContinuousAvg(ctx, tx, r)

	case dt.AggType == models.AggSum && !dt.IsTotalizer:
		if dt.VarType != models.VarContinuous && dt.VarType != models.VarDiscrete {
			return nil, fmt.Errorf("%w: SUM over %s", models.ErrUnknownAggregation, r.df)
		}
		if r.augmented() {
			return s.buildAugmented(ctx, tx, r, aggSum, true)
		}
		return resampleBins(r.readings, r.df, aggSum), nil

	case dt.AggType == models.AggSum:
		return s.buildTotalizer(ctx, tx, r)

	case dt.AggType == models.AggLast:
		if r.augmented() {
			return s.buildAugmented(ctx, tx, r, aggLast, false)
		}
		return resampleBins(r.readings, r.df, aggLast), nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownAggregation, r.df)
}

func (s *Synthesizer) buildAugmented(ctx context.Context, tx pgx.Tx, r *feedRun, agg aggFunc, isSum bool) (readingMap, error) {
	markers, err := store.ListNdMarkers(ctx, tx, r.ds.ID, r.startRts, r.batchEndRts)
	if err != nil {
		return nil, err
	}
	dfrAtStart, err := store.GetDfReadingAt(ctx, tx, r.df.ID, r.startRts)
	if err != nil {
		return nil, err
	}
	return resampleAndAugment(r.readings, markers, r.df,
		r.startRts, r.batchEndRts, r.ndPeriodOpen, dfrAtStart, agg, isSum), nil
}

func (s *Synthesizer) buildTotalizer(ctx context.Context, tx pgx.Tx, r *feedRun) (readingMap, error) {
	if r.augmented() {
		return s.buildAugmented(ctx, tx, r, aggLast, false)
	}
	m := resampleBins(r.readings, r.df, aggLast)
	if !r.df.IsRestOn {
		return m, nil
	}
	if r.ds.TimeChange == 0 {
		return nil, fmt.Errorf("%w: %s restoration needs time_change on %s",
			models.ErrValidation, r.df, r.ds)
	}
	prev, err := store.LatestNativeDfReadings(ctx, tx, r.df.ID, r.startRts, 1)
	if err != nil {
		return nil, err
	}
	var prevNative *models.DfReading
	if len(prev) > 0 {
		prevNative = &prev[len(prev)-1]
	}
	return restoreTotalizer(m, r.df, r.ds.TimeChange, r.startRts, prevNative), nil
}

// buildContinuousAvg resamples and, when restoration is on, interpolates.
// When every reading of the batch ends up unusable for the spline while more
// data is known to exist ahead, the batch is extended by a doubling number
// of extra readings until the spline closes or the growth cap trips.
func (s *Synthesizer) buildContinuousAvg(ctx context.Context, tx pgx.Tx, r *feedRun) (readingMap, error) {
	m := resampleBins(r.readings, r.df, aggAvg)
	if !r.df.IsRestOn {
		return m, nil
	}
	if r.ds.TimeChange == 0 {
		return nil, fmt.Errorf("%w: %s restoration needs time_change on %s",
			models.ErrValidation, r.df, r.ds)
	}

	prevNative, err := store.LatestNativeDfReadings(ctx, tx, r.df.ID, r.startRts, numPrevNativeReadings)
	if err != nil {
		return nil, err
	}

	for growth := 1; ; {
		restored, err := restoreContinuousAvg(m, r.df, r.ds.TimeChange, r.startRts, prevNative)
		if err != nil {
			return nil, err
		}
		if !allSplineNotToUse(restored) || r.batchEndRts >= r.endRts {
			return restored, nil
		}

		growth *= 2
		if growth > maxRestorationGrowth {
			return nil, fmt.Errorf("%w: %s", models.ErrRestorationBatchOverflow, r.df)
		}
		if _, err = s.loadBatch(ctx, tx, r, len(r.readings)+growth); err != nil {
			return nil, err
		}
		m = resampleBins(r.readings, r.df, aggAvg)
	}
}

func allSplineNotToUse(m readingMap) bool {
	if len(m) == 0 {
		return false
	}
	for _, dfr := range m {
		if dfr.NotToUse != models.SplineNotToUse {
			return false
		}
	}
	return true
}

// persist writes out the leading run of committable readings and advances
// the watermarks. The first tagged reading stops the run: an unclosed bin
// retreats one bin, an unclosed spline retreats to the reading before it.
func (s *Synthesizer) persist(ctx context.Context, tx pgx.Tx, r *feedRun, m readingMap) error {
	rtss := m.sortedTs()

	rtsNext := r.startRts
	emit := make([]models.DfReading, 0, len(rtss))
	for idx, rts := range rtss {
		dfr := m[rts]
		if dfr.NotToUse != models.UseOK {
			switch dfr.NotToUse {
			case models.SplineUnclosed:
				if idx > 0 {
					rtsNext = rtss[idx-1]
				}
			default:
				rtsNext = rts - r.resample
			}
			break
		}
		emit = append(emit, *dfr)
		rtsNext = rts
	}

	if err := store.InsertDfReadings(ctx, tx, emit); err != nil {
		return err
	}

	df, ds := r.df, r.ds
	models.SetIfGreater(&df.Changes, "ts_to_start_with", &df.TsToStartWith, rtsNext)
	if len(emit) > 0 {
		models.SetIfGreater(&df.Changes, "last_reading_ts", &df.LastReadingTs, emit[len(emit)-1].Time)
	}
	if err := store.SaveDatafeed(ctx, tx, df); err != nil {
		return err
	}

	models.SetIfGreater(&ds.Changes, "ts_to_start_with", &ds.TsToStartWith, rtsNext)
	return store.SaveDatastream(ctx, tx, ds)
}

func (s *Synthesizer) commitSaved(saved []any) {
	for _, e := range saved {
		if s.committer != nil {
			s.committer.Commit(e)
			continue
		}
		switch v := e.(type) {
		case *models.Datafeed:
			v.Changes.Reset()
		case *models.Datastream:
			v.Changes.Reset()
		}
	}
}
