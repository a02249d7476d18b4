/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

// Disabled is a Provider whose metrics discard every observation
type Disabled struct{}

func (Disabled) NewCounter(CounterOpts) Counter       { return disabledCounter{} }
func (Disabled) NewGauge(GaugeOpts) Gauge             { return disabledGauge{} }
func (Disabled) NewHistogram(HistogramOpts) Histogram { return disabledHistogram{} }

type disabledCounter struct{}

func (c disabledCounter) With(...string) Counter { return c }
func (disabledCounter) Add(float64)              {}

type disabledGauge struct{}

func (g disabledGauge) With(...string) Gauge { return g }
func (disabledGauge) Add(float64)            {}
func (disabledGauge) Set(float64)            {}

type disabledHistogram struct{}

func (h disabledHistogram) With(...string) Histogram { return h }
func (disabledHistogram) Observe(float64)            {}
