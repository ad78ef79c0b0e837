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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
	"gocloud.dev/blob/fileblob"

	"github.com/spatialmodel/icepipe/zarr"
)

// writeGranule writes a minimal NetCDF granule with nRef reference points
// and two cycles.
func writeGranule(t *testing.T, path string, refPt []int32, hCorr, deltaTime []float64, quality []uint8) {
	t.Helper()
	nRef := len(refPt)
	h := cdf.NewHeader(
		[]string{"ref_pt", "cycle_number", "nchar"},
		[]int{nRef, 2, 4})
	h.AddAttribute("", "featureType", "trajectory")

	h.AddVariable("ref_pt", []string{"ref_pt"}, []int32{0})
	h.AddAttribute("ref_pt", "long_name", "Reference point number")
	h.AddVariable("h_corr", []string{"ref_pt", "cycle_number"}, []float64{0})
	h.AddAttribute("h_corr", "_FillValue", []float64{3.0e38})
	h.AddVariable("delta_time", []string{"ref_pt", "cycle_number"}, []float64{0})
	h.AddVariable("quality_summary", []string{"ref_pt", "cycle_number"}, []uint8{0})
	h.AddVariable("product", []string{"nchar"}, "")
	h.Define()
	for _, err := range h.Check() {
		t.Fatal(err)
	}

	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []struct {
		name string
		data interface{}
	}{
		{"ref_pt", refPt},
		{"h_corr", hCorr},
		{"delta_time", deltaTime},
		{"quality_summary", quality},
		{"product", "AT11"},
	} {
		w := f.Writer(v.name, nil, nil)
		// cdf returns io.EOF when a write exactly fills the variable.
		if _, err := w.Write(v.data); err != nil && err != io.EOF {
			t.Fatalf("writing %s: %v", v.name, err)
		}
	}
}

func TestConvertTracks(t *testing.T) {
	dir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	p1 := filepath.Join(dir, "ATL11_089310_0307_003_01.h5")
	p2 := filepath.Join(dir, "ATL11_089311_0307_003_01.h5")
	writeGranule(t, p1,
		[]int32{100, 101},
		[]float64{1, 2, 3, 4},
		[]float64{0, 1, 2, 3},
		[]uint8{0, 0, 0, 1})
	writeGranule(t, p2,
		[]int32{200, 201, 202},
		[]float64{5, 6, 7, 8, 9, 10},
		[]float64{4, 5, 6, 7, 8, 9},
		[]uint8{0, 0, 0, 0, 0, 0})

	sets := []TrackSet{{
		ReferenceGroundTrack: "0893",
		Granules: []ATL11Granule{
			{ReferenceGroundTrack: "0893", OrbitalSegment: "10", FirstCycle: "03", LastCycle: "07", Version: "003", Revision: "01", Path: p1},
			{ReferenceGroundTrack: "0893", OrbitalSegment: "11", FirstCycle: "03", LastCycle: "07", Version: "003", Revision: "01", Path: p2},
		},
	}}

	bdir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bdir)
	bucket, err := fileblob.OpenBucket(bdir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()
	ctx := context.Background()

	cfg := &ConvertConfig{
		Schema: Schema{
			"h_corr": {Dtype: zarr.Float32, LongName: "Mean corrected height", Units: "m"},
		},
	}
	if err := ConvertTracks(ctx, sets, bucket, "icesat2", cfg, nil); err != nil {
		t.Fatal(err)
	}

	store := zarr.NewStore(bucket, "icesat2/ATL11_0893_0307_003_01.zarr")

	attrs, err := store.ReadGroup(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if attrs["reference_ground_track"] != "0893" {
		t.Errorf("reference_ground_track: have %v", attrs["reference_ground_track"])
	}
	if attrs["featureType"] != "trajectory" {
		t.Errorf("featureType: have %v", attrs["featureType"])
	}

	// h_corr is concatenated along the reference-point dimension and
	// cast to the schema dtype.
	h, err := store.ReadArray(ctx, "h_corr")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.Shape, []int{5, 2}) {
		t.Errorf("h_corr shape: have %v, want [5 2]", h.Shape)
	}
	if h.Dtype != zarr.Float32 {
		t.Errorf("h_corr dtype: have %s, want %s", h.Dtype, zarr.Float32)
	}
	want := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if !reflect.DeepEqual(h.Data, want) {
		t.Errorf("h_corr data: have %v, want %v", h.Data, want)
	}
	if h.Attrs["long_name"] != "Mean corrected height" || h.Attrs["units"] != "m" {
		t.Errorf("h_corr attrs: have %v", h.Attrs)
	}
	// The single-element fill value attribute becomes a scalar.
	if fv, ok := h.Attrs["_FillValue"].(float64); !ok || fv != 3.0e38 {
		t.Errorf("_FillValue: have %v", h.Attrs["_FillValue"])
	}

	refPt, err := store.ReadArray(ctx, "ref_pt")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(refPt.Data, []int32{100, 101, 200, 201, 202}) {
		t.Errorf("ref_pt: have %v", refPt.Data)
	}

	// Byte data keeps its width without a schema entry.
	q, err := store.ReadArray(ctx, "quality_summary")
	if err != nil {
		t.Fatal(err)
	}
	if q.Dtype != zarr.Int8 {
		t.Errorf("quality_summary dtype: have %s, want %s", q.Dtype, zarr.Int8)
	}

	// Character variables are dropped.
	if _, err := store.ReadArray(ctx, "product"); err == nil {
		t.Error("character variable should not be converted")
	}

	// The store metadata is consolidated.
	if _, err := os.Stat(filepath.Join(bdir, "icesat2", "ATL11_0893_0307_003_01.zarr", ".zmetadata")); err != nil {
		t.Errorf("missing consolidated metadata: %v", err)
	}
}

func TestConvertTrack_dimensionMismatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	p1 := filepath.Join(dir, "ATL11_089310_0307_003_01.h5")
	p2 := filepath.Join(dir, "ATL11_089311_0307_003_01.h5")
	writeGranule(t, p1,
		[]int32{100},
		[]float64{1, 2},
		[]float64{0, 1},
		[]uint8{0, 0})

	// The second granule has three cycles instead of two.
	h := cdf.NewHeader([]string{"ref_pt", "cycle_number"}, []int{1, 3})
	h.AddVariable("ref_pt", []string{"ref_pt"}, []int32{0})
	h.AddVariable("h_corr", []string{"ref_pt", "cycle_number"}, []float64{0})
	h.AddVariable("delta_time", []string{"ref_pt", "cycle_number"}, []float64{0})
	h.AddVariable("quality_summary", []string{"ref_pt", "cycle_number"}, []uint8{0})
	h.Define()
	ff, err := os.Create(p2)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	if _, err := cdf.Create(ff, h); err != nil {
		t.Fatal(err)
	}

	sets := []TrackSet{{
		ReferenceGroundTrack: "0893",
		Granules: []ATL11Granule{
			{ReferenceGroundTrack: "0893", OrbitalSegment: "10", FirstCycle: "03", LastCycle: "07", Version: "003", Revision: "01", Path: p1},
			{ReferenceGroundTrack: "0893", OrbitalSegment: "11", FirstCycle: "03", LastCycle: "07", Version: "003", Revision: "01", Path: p2},
		},
	}}

	bdir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bdir)
	bucket, err := fileblob.OpenBucket(bdir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()

	if err := ConvertTracks(context.Background(), sets, bucket, "icesat2", nil, nil); err == nil {
		t.Error("expected an error for mismatched cycle dimensions")
	}
}
