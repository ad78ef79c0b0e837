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
	"os"
	"path"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"

	"github.com/spatialmodel/icepipe/zarr"
)

// DefaultChunk is the default chunk length along the reference-point
// dimension of the output store.
const DefaultChunk = 10000

// ConvertConfig configures the conversion of consolidated per-track
// granule sets into Zarr stores.
type ConvertConfig struct {
	// Schema gives the per-field output encodings. Fields without a
	// schema entry keep their source datatype.
	Schema Schema

	// Chunk is the chunk length along the reference-point dimension.
	// The default is DefaultChunk.
	Chunk int

	// Log receives structured progress information. If it is nil, the
	// standard logger is used.
	Log logrus.FieldLogger
}

func (c *ConvertConfig) chunk() int {
	if c.Chunk < 1 {
		return DefaultChunk
	}
	return c.Chunk
}

func (c *ConvertConfig) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// ConvertTracks converts each track set into a Zarr store named
// '<track set name>.zarr' under prefix in bucket.
// Progress messages are sent to msgChan if it is not nil.
func ConvertTracks(ctx context.Context, sets []TrackSet, bucket *blob.Bucket, prefix string, cfg *ConvertConfig, msgChan chan string) error {
	if cfg == nil {
		cfg = &ConvertConfig{}
	}
	for i := range sets {
		ts := &sets[i]
		store := zarr.NewStore(bucket, path.Join(prefix, ts.Name()+".zarr"))
		if err := ConvertTrack(ctx, ts, store, cfg); err != nil {
			return err
		}
		if msgChan != nil {
			msgChan <- fmt.Sprintf("Converted track %s (%d of %d)\n", ts.ReferenceGroundTrack, i+1, len(sets))
		}
	}
	return nil
}

// ConvertTrack converts the granules of one track set into the given
// Zarr store: the per-segment granules are concatenated along the
// reference-point dimension, attribute encodings are fixed up for JSON
// serialization, and each field is written with the dtype given by the
// schema.
func ConvertTrack(ctx context.Context, ts *TrackSet, store *zarr.Store, cfg *ConvertConfig) error {
	if cfg == nil {
		cfg = &ConvertConfig{}
	}
	cfg.log().WithFields(logrus.Fields{
		"track":    ts.ReferenceGroundTrack,
		"granules": len(ts.Granules),
	}).Info("converting track")
	files := make([]*cdf.File, len(ts.Granules))
	for i, g := range ts.Granules {
		f, err := os.Open(g.Path)
		if err != nil {
			return fmt.Errorf("icepipe: opening granule: %v", err)
		}
		defer f.Close()
		files[i], err = cdf.Open(f)
		if err != nil {
			return fmt.Errorf("icepipe: opening granule %s: %v", g.Path, err)
		}
	}

	attrs := globalAttrs(files[0])
	attrs["reference_ground_track"] = ts.ReferenceGroundTrack
	if err := store.WriteGroup(ctx, "", attrs); err != nil {
		return err
	}

	for _, v := range files[0].Header.Variables() {
		if _, ok := files[0].Header.ZeroValue(v, 0).(string); ok {
			continue // character data has no place in the output store
		}
		data, shape, err := concatVariable(files, ts, v)
		if err != nil {
			return err
		}
		a := &zarr.Array{
			Shape: shape,
			Dtype: zarr.DtypeFor(data),
			Attrs: variableAttrs(files[0], v),
		}
		if enc, ok := cfg.Schema[v]; ok {
			a.Dtype = enc.Dtype
			if enc.LongName != "" {
				a.Attrs["long_name"] = enc.LongName
			}
			if enc.Units != "" {
				a.Attrs["units"] = enc.Units
			}
		}
		a.Data = zarr.Cast(data, a.Dtype)
		a.Chunks = make([]int, len(shape))
		copy(a.Chunks, shape)
		if a.Chunks[0] = cfg.chunk(); a.Chunks[0] > shape[0] && shape[0] > 0 {
			a.Chunks[0] = shape[0]
		}
		if err := store.WriteArray(ctx, v, a); err != nil {
			return err
		}
	}
	return store.Consolidate(ctx)
}

// concatVariable reads variable v from each granule file and concatenates
// the values along the first (reference-point) dimension.
func concatVariable(files []*cdf.File, ts *TrackSet, v string) (interface{}, []int, error) {
	var out interface{}
	var shape []int
	for i, ff := range files {
		lengths := ff.Header.Lengths(v)
		if len(lengths) == 0 {
			return nil, nil, fmt.Errorf("icepipe: variable %s missing from granule %s", v, ts.Granules[i].Path)
		}
		if lengths[0] == 0 {
			return nil, nil, fmt.Errorf("icepipe: variable %s in granule %s uses the record dimension, which is not supported", v, ts.Granules[i].Path)
		}
		r := ff.Reader(v, nil, nil)
		buf := r.Zero(-1)
		if _, err := r.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("icepipe: reading variable %s from granule %s: %v", v, ts.Granules[i].Path, err)
		}
		if i == 0 {
			out = buf
			shape = lengths
			continue
		}
		if !sameTrailingDims(shape, lengths) {
			return nil, nil, fmt.Errorf("icepipe: variable %s has mismatched dimensions %v and %v across granules of track %s",
				v, shape, lengths, ts.ReferenceGroundTrack)
		}
		var err error
		out, err = appendValues(out, buf)
		if err != nil {
			return nil, nil, fmt.Errorf("icepipe: concatenating variable %s of track %s: %v", v, ts.ReferenceGroundTrack, err)
		}
		shape[0] += lengths[0]
	}
	return out, shape, nil
}

func sameTrailingDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 1; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendValues(dst, src interface{}) (interface{}, error) {
	switch d := dst.(type) {
	case []uint8:
		return append(d, src.([]uint8)...), nil
	case []int16:
		return append(d, src.([]int16)...), nil
	case []int32:
		return append(d, src.([]int32)...), nil
	case []float32:
		return append(d, src.([]float32)...), nil
	case []float64:
		return append(d, src.([]float64)...), nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", dst)
	}
}

// globalAttrs returns the file's global attributes with their encodings
// fixed up for JSON serialization.
func globalAttrs(ff *cdf.File) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, a := range ff.Header.Attributes("") {
		attrs[a] = fixupAttr(ff.Header.GetAttribute("", a))
	}
	return attrs
}

// variableAttrs returns the attributes of variable v with their encodings
// fixed up for JSON serialization.
func variableAttrs(ff *cdf.File, v string) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, a := range ff.Header.Attributes(v) {
		attrs[a] = fixupAttr(ff.Header.GetAttribute(v, a))
	}
	return attrs
}

// fixupAttr converts a NetCDF attribute value into something the JSON
// encoder can represent faithfully: byte sequences become strings and
// single-element numeric slices become scalars.
func fixupAttr(v interface{}) interface{} {
	switch t := v.(type) {
	case []uint8:
		return string(t)
	case []int16:
		if len(t) == 1 {
			return t[0]
		}
	case []int32:
		if len(t) == 1 {
			return t[0]
		}
	case []float32:
		if len(t) == 1 {
			return t[0]
		}
	case []float64:
		if len(t) == 1 {
			return t[0]
		}
	}
	return v
}
