// Package chart lays out category amounts on a fixed canvas using a
// logarithmic vertical scale.
package chart

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"billetera/internal/core"
)

// ErrNoData is returned for an empty item list; callers show a
// placeholder instead of an empty canvas.
var ErrNoData = errors.New("no data to plot")

type Item struct {
	CategoryID string  `json:"category_id"`
	Label      string  `json:"label"`
	Amount     float64 `json:"amount"`
	Color      string  `json:"color"`
}

// Canvas is the drawing area in pixels. Padding applies to every side.
type Canvas struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Padding float64 `json:"padding"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

type PlotPoint struct {
	CategoryID string  `json:"category_id"`
	Label      string  `json:"label"`
	Amount     float64 `json:"amount"`
	Color      string  `json:"color"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	// Stem runs from the baseline up to the marker.
	Stem   Segment `json:"stem"`
	Marker Point   `json:"marker"`
	// Percent is nil when the total is zero.
	Percent *float64 `json:"percent,omitempty"`
}

type Plot struct {
	Canvas Canvas      `json:"canvas"`
	Points []PlotPoint `json:"points"`
}

// Layout sorts items ascending by amount (stable) and places them left to
// right. Heights follow ln(a+1)/ln(max+1) of the usable height; an all
// zero set sits on the baseline. Percentages use total as their base.
func Layout(items []Item, canvas Canvas, total float64) (Plot, error) {
	if len(items) == 0 {
		return Plot{}, ErrNoData
	}
	usableW := canvas.Width - 2*canvas.Padding
	usableH := canvas.Height - 2*canvas.Padding
	if usableW <= 0 || usableH <= 0 || canvas.Padding < 0 {
		return Plot{}, fmt.Errorf("%w: canvas %gx%g with padding %g leaves no drawing area",
			core.ErrInvalidInput, canvas.Width, canvas.Height, canvas.Padding)
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	maxAmount := 0.0
	for _, it := range sorted {
		if it.Amount < 0 || math.IsNaN(it.Amount) || math.IsInf(it.Amount, 0) {
			return Plot{}, fmt.Errorf("%w: amount %g for %q", core.ErrInvalidInput, it.Amount, it.Label)
		}
		maxAmount = math.Max(maxAmount, it.Amount)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount < sorted[j].Amount
	})

	n := float64(len(sorted))
	baseline := canvas.Height - canvas.Padding
	denom := math.Log(maxAmount + 1)

	points := make([]PlotPoint, len(sorted))
	for i, it := range sorted {
		x := float64(i+1)*usableW/(n+1) + canvas.Padding
		factor := 0.0
		if maxAmount > 0 {
			factor = math.Log(it.Amount+1) / denom
		}
		y := canvas.Height - factor*usableH - canvas.Padding

		p := PlotPoint{
			CategoryID: it.CategoryID,
			Label:      it.Label,
			Amount:     it.Amount,
			Color:      it.Color,
			X:          x,
			Y:          y,
			Stem:       Segment{From: Point{X: x, Y: baseline}, To: Point{X: x, Y: y}},
			Marker:     Point{X: x, Y: y},
		}
		if total != 0 {
			pct := it.Amount / total * 100
			p.Percent = &pct
		}
		points[i] = p
	}
	return Plot{Canvas: canvas, Points: points}, nil
}

// FromTotals converts aggregated totals into chart items.
func FromTotals(totals []core.CategoryTotal) []Item {
	items := make([]Item, len(totals))
	for i, ct := range totals {
		items[i] = Item{
			CategoryID: ct.CategoryID,
			Label:      ct.Label,
			Amount:     ct.Amount.InexactFloat64(),
			Color:      ct.Color,
		}
	}
	return items
}
