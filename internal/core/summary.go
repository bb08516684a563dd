package core

import "github.com/shopspring/decimal"

// CategoryAmount is an amount aggregated under one group or category label.
type CategoryAmount struct {
	Name   string
	Amount float64
}

// CategoryCount is a record count under one label.
type CategoryCount struct {
	Name  string
	Count int
}

// Share is one slice of a percentage distribution.
type Share struct {
	Name    string
	Value   float64
	Percent float64
}

// Rounded returns Percent to one decimal, half away from zero.
func (s Share) Rounded() float64 {
	f, _ := decimal.NewFromFloat(s.Percent).Round(1).Float64()
	return f
}

// DayPoint is one entry of a per-day series.
type DayPoint struct {
	Day   Day
	Value float64
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Month   MonthKey
	Outflow float64
	Inflow  float64
	ByGroup []CategoryAmount
}
