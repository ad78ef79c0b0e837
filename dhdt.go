/*
Copyright © 2020 the icepipe authors.
This file is part of icepipe.

icepipe is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

icepipe is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with icepipe.  If not, see <http://www.gnu.org/licenses/>.
*/

package icepipe

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/spatialmodel/icepipe/zarr"
)

const (
	// secondsPerYear converts elevation-change slopes from metres per
	// second to metres per Julian year.
	secondsPerYear = 365.25 * 24 * 3600

	// DefaultMinCycles is the minimum number of valid height
	// measurements a reference point needs for a trend fit.
	DefaultMinCycles = 2

	// DefaultMinHeightRange is the minimum range, in metres, between a
	// reference point's highest and lowest measured heights for the
	// point to be considered actively changing.
	DefaultMinHeightRange = 0.5
)

// DhdtConfig configures the computation of per-reference-point
// elevation-change rates.
type DhdtConfig struct {
	// Region optionally restricts the computation to a named region;
	// see Regions. Empty means no spatial filtering.
	Region string

	// MinCycles is the minimum number of valid height measurements a
	// point needs. Defaults to DefaultMinCycles.
	MinCycles int

	// MinHeightRange is the minimum peak-to-peak height range, in
	// metres. Points varying less than this are dropped. Defaults to
	// DefaultMinHeightRange.
	MinHeightRange float64

	// Log receives structured progress information. If it is nil, the
	// standard logger is used.
	Log logrus.FieldLogger
}

func (c *DhdtConfig) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *DhdtConfig) minCycles() int {
	if c.MinCycles < 2 {
		return DefaultMinCycles
	}
	return c.MinCycles
}

func (c *DhdtConfig) minHeightRange() float64 {
	if c.MinHeightRange <= 0 {
		return DefaultMinHeightRange
	}
	return c.MinHeightRange
}

// A Trend is the result of an ordinary least-squares fit of height
// against time for one reference point.
type Trend struct {
	// Slope is the rate of height change in metres per year.
	Slope float64

	// Intercept is the fitted height, in metres, at the ATLAS standard
	// data product epoch.
	Intercept float64

	// RValue is the Pearson correlation coefficient of the fit.
	RValue float64

	// PValue is the two-sided p-value for the hypothesis that the
	// slope is zero.
	PValue float64

	// StdErr is the standard error of the slope estimate.
	StdErr float64
}

// HeightRange returns the difference between the largest and smallest
// values of h, ignoring NaNs. It returns NaN if h has no valid values.
func HeightRange(h []float64) float64 {
	min, max := math.Inf(1), math.Inf(-1)
	ok := false
	for _, v := range h {
		if math.IsNaN(v) {
			continue
		}
		ok = true
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if !ok {
		return math.NaN()
	}
	return max - min
}

// FitTrend fits an ordinary least-squares line through the (t, h) pairs,
// skipping pairs where either value is NaN. t is in years and h in
// metres. It returns an error if fewer than minPoints valid pairs
// remain.
func FitTrend(t, h []float64, minPoints int) (Trend, error) {
	if len(t) != len(h) {
		return Trend{}, fmt.Errorf("icepipe: trend fit: len(t)=%d but len(h)=%d", len(t), len(h))
	}
	var x, y []float64
	for i := range t {
		if math.IsNaN(t[i]) || math.IsNaN(h[i]) {
			continue
		}
		x = append(x, t[i])
		y = append(y, h[i])
	}
	n := len(x)
	if n < minPoints {
		return Trend{}, fmt.Errorf("icepipe: trend fit: %d valid measurements, need %d", n, minPoints)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)

	tr := Trend{
		Slope:     beta,
		Intercept: alpha,
		RValue:    r,
	}
	if n == 2 {
		// A two-point fit is exact; there is no residual to
		// estimate significance from.
		tr.PValue = math.NaN()
		tr.StdErr = math.NaN()
		return tr, nil
	}

	xbar := stat.Mean(x, nil)
	var ssr, sxx float64
	for i := range x {
		resid := y[i] - (alpha + beta*x[i])
		ssr += resid * resid
		dx := x[i] - xbar
		sxx += dx * dx
	}
	tr.StdErr = math.Sqrt(ssr / float64(n-2) / sxx)

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	if tr.StdErr == 0 {
		tr.PValue = 0
	} else {
		tstat := beta / tr.StdErr
		tr.PValue = 2 * dist.CDF(-math.Abs(tstat))
	}
	return tr, nil
}

// A DhdtPoint is the fitted elevation-change record for one reference
// point.
type DhdtPoint struct {
	ReferenceGroundTrack string
	ReferencePoint       int32
	Longitude, Latitude  float64
	X, Y                 float64 // EPSG:3031 metres
	NumObs               int32
	HeightRange          float64
	Trend
}

// ComputeDhdt fits per-reference-point elevation-change trends across
// all the per-track Zarr stores under prefix in bucket, and writes the
// results as a flat Zarr store at outPrefix. Progress messages are sent
// to msgChan if it is not nil.
//
// A reference point is kept when it has at least MinCycles valid
// height measurements, its height range exceeds MinHeightRange, and it
// falls inside the configured region (if any).
func ComputeDhdt(ctx context.Context, bucket *blob.Bucket, prefix, outPrefix string, cfg *DhdtConfig, msgChan chan string) (int, error) {
	if cfg == nil {
		cfg = &DhdtConfig{}
	}
	var region *Region
	if cfg.Region != "" {
		r, err := GetRegion(cfg.Region)
		if err != nil {
			return 0, err
		}
		region = &r
	}

	stores, err := zarr.FindStores(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}
	if len(stores) == 0 {
		return 0, fmt.Errorf("icepipe: no Zarr stores found under %s", prefix)
	}

	var points []DhdtPoint
	for i, storePrefix := range stores {
		pts, err := dhdtTrack(ctx, zarr.NewStore(bucket, storePrefix), region, cfg)
		if err != nil {
			return 0, fmt.Errorf("icepipe: computing dhdt for %s: %v", storePrefix, err)
		}
		points = append(points, pts...)
		cfg.log().WithFields(logrus.Fields{
			"store":  storePrefix,
			"points": len(pts),
		}).Info("fitted elevation-change trends")
		if msgChan != nil {
			msgChan <- fmt.Sprintf("Fitted trends for store %d of %d (%d points so far)\n",
				i+1, len(stores), len(points))
		}
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("icepipe: no reference points passed the dhdt filters")
	}

	out := zarr.NewStore(bucket, outPrefix)
	if err := writeDhdt(ctx, out, points, cfg); err != nil {
		return 0, err
	}
	return len(points), nil
}

// dhdtTrack fits trends for the reference points of one per-track store.
func dhdtTrack(ctx context.Context, store *zarr.Store, region *Region, cfg *DhdtConfig) ([]DhdtPoint, error) {
	track, err := storeTrack(ctx, store)
	if err != nil {
		return nil, err
	}

	h, err := readMatrix(ctx, store, "h_corr")
	if err != nil {
		return nil, err
	}
	t, err := readMatrix(ctx, store, "delta_time")
	if err != nil {
		return nil, err
	}
	quality, err := readMatrix(ctx, store, "quality_summary")
	if err != nil {
		return nil, err
	}
	lon, err := readVector(ctx, store, "longitude")
	if err != nil {
		return nil, err
	}
	lat, err := readVector(ctx, store, "latitude")
	if err != nil {
		return nil, err
	}
	refPt, err := readVector(ctx, store, "ref_pt")
	if err != nil {
		return nil, err
	}

	n, cycles := h.Shape[0], h.Shape[1]
	if !sameShape(h.Shape, t.Shape) || !sameShape(h.Shape, quality.Shape) {
		return nil, fmt.Errorf("h_corr, delta_time and quality_summary have mismatched shapes %v, %v, %v",
			h.Shape, t.Shape, quality.Shape)
	}
	if len(lon) != n || len(lat) != n || len(refPt) != n {
		return nil, fmt.Errorf("coordinate lengths %d, %d, %d do not match %d reference points",
			len(lon), len(lat), len(refPt), n)
	}

	var points []DhdtPoint
	th := make([]float64, cycles)
	hh := make([]float64, cycles)
	for i := 0; i < n; i++ {
		x, y := LonLatToXY(lon[i], lat[i])
		if region != nil && !region.Contains(x, y) {
			continue
		}
		for j := 0; j < cycles; j++ {
			hv := h.Get(i, j)
			if quality.Get(i, j) != 0 {
				hv = math.NaN()
			}
			hh[j] = hv
			th[j] = t.Get(i, j) / secondsPerYear
		}
		hrange := HeightRange(hh)
		if math.IsNaN(hrange) || hrange <= cfg.minHeightRange() {
			continue
		}
		tr, err := FitTrend(th, hh, cfg.minCycles())
		if err != nil {
			continue // too few valid cycles
		}
		nobs := int32(0)
		for _, v := range hh {
			if !math.IsNaN(v) {
				nobs++
			}
		}
		points = append(points, DhdtPoint{
			ReferenceGroundTrack: track,
			ReferencePoint:       int32(refPt[i]),
			Longitude:            lon[i],
			Latitude:             lat[i],
			X:                    x,
			Y:                    y,
			NumObs:               nobs,
			HeightRange:          hrange,
			Trend:                tr,
		})
	}
	return points, nil
}

// storeTrack reads the reference_ground_track attribute from a store's
// root group.
func storeTrack(ctx context.Context, store *zarr.Store) (string, error) {
	attrs, err := store.ReadGroup(ctx, "")
	if err != nil {
		return "", err
	}
	track, ok := attrs["reference_ground_track"].(string)
	if !ok {
		return "", fmt.Errorf("store has no reference_ground_track attribute")
	}
	return track, nil
}

// readMatrix reads a two-dimensional variable into a dense array.
func readMatrix(ctx context.Context, store *zarr.Store, name string) (*sparse.DenseArray, error) {
	a, err := store.ReadArray(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("variable %s has shape %v, expected 2 dimensions", name, a.Shape)
	}
	d := sparse.ZerosDense(a.Shape...)
	copy(d.Elements, zarr.Cast(a.Data, zarr.Float64).([]float64))
	return d, nil
}

// readVector reads a one-dimensional variable as float64 values.
func readVector(ctx context.Context, store *zarr.Store, name string) ([]float64, error) {
	a, err := store.ReadArray(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(a.Shape) != 1 {
		return nil, fmt.Errorf("variable %s has shape %v, expected 1 dimension", name, a.Shape)
	}
	return zarr.Cast(a.Data, zarr.Float64).([]float64), nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeDhdt writes the fitted points as a flat store of one-dimensional
// arrays sharing the reference-point dimension.
func writeDhdt(ctx context.Context, store *zarr.Store, points []DhdtPoint, cfg *DhdtConfig) error {
	attrs := map[string]interface{}{
		"description":      "ICESat-2 ATL11 rate of height change over time",
		"min_cycles":       cfg.minCycles(),
		"min_height_range": cfg.minHeightRange(),
	}
	if cfg.Region != "" {
		attrs["region"] = cfg.Region
	}
	if err := store.WriteGroup(ctx, "", attrs); err != nil {
		return err
	}

	n := len(points)
	f64 := func(get func(p *DhdtPoint) float64) []float64 {
		o := make([]float64, n)
		for i := range points {
			o[i] = get(&points[i])
		}
		return o
	}
	i32 := func(get func(p *DhdtPoint) int32) []int32 {
		o := make([]int32, n)
		for i := range points {
			o[i] = get(&points[i])
		}
		return o
	}

	vars := []struct {
		name  string
		dtype zarr.Dtype
		data  interface{}
		attrs map[string]interface{}
	}{
		{"ref_pt", zarr.Int32, i32(func(p *DhdtPoint) int32 { return p.ReferencePoint }),
			map[string]interface{}{"long_name": "Reference point number"}},
		{"longitude", zarr.Float64, f64(func(p *DhdtPoint) float64 { return p.Longitude }),
			map[string]interface{}{"long_name": "Longitude", "units": "degrees_east"}},
		{"latitude", zarr.Float64, f64(func(p *DhdtPoint) float64 { return p.Latitude }),
			map[string]interface{}{"long_name": "Latitude", "units": "degrees_north"}},
		{"x", zarr.Float64, f64(func(p *DhdtPoint) float64 { return p.X }),
			map[string]interface{}{"long_name": "Polar stereographic x", "units": "m"}},
		{"y", zarr.Float64, f64(func(p *DhdtPoint) float64 { return p.Y }),
			map[string]interface{}{"long_name": "Polar stereographic y", "units": "m"}},
		{"nobs", zarr.Int32, i32(func(p *DhdtPoint) int32 { return p.NumObs }),
			map[string]interface{}{"long_name": "Number of valid height measurements"}},
		{"h_range", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.HeightRange }),
			map[string]interface{}{"long_name": "Height range across cycles", "units": "m"}},
		{"dhdt_slope", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.Slope }),
			map[string]interface{}{"long_name": "Rate of height change over time", "units": "m/yr"}},
		{"dhdt_intercept", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.Intercept }),
			map[string]interface{}{"long_name": "Height at the standard data product epoch", "units": "m"}},
		{"dhdt_rvalue", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.RValue }),
			map[string]interface{}{"long_name": "Correlation coefficient of the trend fit"}},
		{"dhdt_pvalue", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.PValue }),
			map[string]interface{}{"long_name": "Two-sided p-value of the trend fit"}},
		{"dhdt_stderr", zarr.Float32, f64(func(p *DhdtPoint) float64 { return p.StdErr }),
			map[string]interface{}{"long_name": "Standard error of the trend slope", "units": "m/yr"}},
	}
	chunk := n
	if chunk > DefaultChunk {
		chunk = DefaultChunk
	}
	for _, v := range vars {
		a := &zarr.Array{
			Shape:  []int{n},
			Chunks: []int{chunk},
			Dtype:  v.dtype,
			Attrs:  v.attrs,
		}
		a.Data = zarr.Cast(v.data, v.dtype)
		if err := store.WriteArray(ctx, v.name, a); err != nil {
			return err
		}
	}
	return store.Consolidate(ctx)
}
