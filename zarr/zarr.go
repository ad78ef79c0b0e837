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

// Package zarr reads and writes the subset of the Zarr v2 chunked array
// format that icepipe needs: uncompressed C-order chunks of little-endian
// numeric data stored in a blob storage bucket, with JSON array and group
// metadata and a consolidated .zmetadata document.
package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"gocloud.dev/blob"
)

// Dtype is a Zarr dtype code.
type Dtype string

// The dtypes supported by this package. All multi-byte types are
// little-endian.
const (
	Int8    Dtype = "|i1"
	Int16   Dtype = "<i2"
	Int32   Dtype = "<i4"
	Int64   Dtype = "<i8"
	Uint64  Dtype = "<u8"
	Float32 Dtype = "<f4"
	Float64 Dtype = "<f8"
)

// DtypeOf returns the dtype code for a data-dictionary type name such as
// "float32" or "int8".
func DtypeOf(name string) (Dtype, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int8", "byte":
		return Int8, nil
	case "int16", "short":
		return Int16, nil
	case "int32", "int":
		return Int32, nil
	case "int64", "long":
		return Int64, nil
	case "uint64":
		return Uint64, nil
	case "float32", "float", "real32":
		return Float32, nil
	case "float64", "double", "real64":
		return Float64, nil
	default:
		return "", fmt.Errorf("zarr: unsupported dtype name '%s'", name)
	}
}

func (d Dtype) itemSize() int {
	switch d {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		panic(fmt.Errorf("zarr: invalid dtype '%s'", string(d)))
	}
}

// An Array is an in-memory n-dimensional array together with its Zarr
// metadata. Data is a flat slice in C (row-major) order whose element type
// must correspond to Dtype ([]int8, []int16, []int32, []int64, []uint64,
// []float32 or []float64) and whose length must equal the product of Shape.
type Array struct {
	Shape []int

	// Chunks gives the chunk shape. Chunking is only supported along
	// the first dimension: Chunks[i] must equal Shape[i] for i > 0.
	Chunks []int

	Dtype Dtype
	Attrs map[string]interface{}
	Data  interface{}
}

// arrayMeta is the .zarray metadata document.
type arrayMeta struct {
	Chunks     []int       `json:"chunks"`
	Compressor interface{} `json:"compressor"`
	Dtype      string      `json:"dtype"`
	FillValue  interface{} `json:"fill_value"`
	Filters    interface{} `json:"filters"`
	Order      string      `json:"order"`
	Shape      []int       `json:"shape"`
	ZarrFormat int         `json:"zarr_format"`
}

// A Store is a Zarr hierarchy rooted at a key prefix within a blob
// storage bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

// NewStore returns a store rooted at prefix within bucket.
func NewStore(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Store) key(parts ...string) string {
	return path.Join(append([]string{s.prefix}, parts...)...)
}

// WriteGroup creates a Zarr group at p with the given attributes.
func (s *Store) WriteGroup(ctx context.Context, p string, attrs map[string]interface{}) error {
	if err := s.writeJSON(ctx, s.key(p, ".zgroup"), map[string]int{"zarr_format": 2}); err != nil {
		return err
	}
	if len(attrs) > 0 {
		return s.writeJSON(ctx, s.key(p, ".zattrs"), attrs)
	}
	return nil
}

// ReadGroup reads the attributes of the group at p. A group without an
// attributes document yields an empty map.
func (s *Store) ReadGroup(ctx context.Context, p string) (map[string]interface{}, error) {
	var format struct {
		ZarrFormat int `json:"zarr_format"`
	}
	if err := s.readJSON(ctx, s.key(p, ".zgroup"), &format); err != nil {
		return nil, err
	}
	if format.ZarrFormat != 2 {
		return nil, fmt.Errorf("zarr: group %s has unsupported format version %d", p, format.ZarrFormat)
	}
	attrs := make(map[string]interface{})
	if err := s.readJSON(ctx, s.key(p, ".zattrs"), &attrs); err != nil {
		return attrs, nil // the attributes document is optional
	}
	return attrs, nil
}

// WriteArray writes a to the store at p, splitting the data into chunks
// along the first dimension. The final chunk is zero-padded to the full
// chunk size as the format requires.
func (s *Store) WriteArray(ctx context.Context, p string, a *Array) error {
	if err := a.check(); err != nil {
		return fmt.Errorf("zarr: writing array %s: %v", p, err)
	}
	meta := arrayMeta{
		Chunks:     a.Chunks,
		Dtype:      string(a.Dtype),
		FillValue:  nil,
		Order:      "C",
		Shape:      a.Shape,
		ZarrFormat: 2,
	}
	if err := s.writeJSON(ctx, s.key(p, ".zarray"), meta); err != nil {
		return err
	}
	if len(a.Attrs) > 0 {
		if err := s.writeJSON(ctx, s.key(p, ".zattrs"), a.Attrs); err != nil {
			return err
		}
	}

	rowLen := 1 // elements per index along the first dimension
	for _, l := range a.Shape[1:] {
		rowLen *= l
	}
	chunkRows := a.Chunks[0]
	nChunks := (a.Shape[0] + chunkRows - 1) / chunkRows
	if a.Shape[0] == 0 {
		nChunks = 0
	}
	for c := 0; c < nChunks; c++ {
		begin := c * chunkRows * rowLen
		end := begin + chunkRows*rowLen
		if max := a.Shape[0] * rowLen; end > max {
			end = max
		}
		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, sliceRange(a.Data, begin, end)); err != nil {
			return fmt.Errorf("zarr: encoding chunk %d of %s: %v", c, p, err)
		}
		if pad := chunkRows*rowLen*a.Dtype.itemSize() - buf.Len(); pad > 0 {
			buf.Write(make([]byte, pad))
		}
		if err := s.writeBlob(ctx, s.key(p, chunkKey(c, len(a.Shape))), buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ReadArray reads the array at p back into memory.
func (s *Store) ReadArray(ctx context.Context, p string) (*Array, error) {
	var meta arrayMeta
	if err := s.readJSON(ctx, s.key(p, ".zarray"), &meta); err != nil {
		return nil, err
	}
	a := &Array{
		Shape:  meta.Shape,
		Chunks: meta.Chunks,
		Dtype:  Dtype(meta.Dtype),
	}
	if err := a.checkShape(); err != nil {
		return nil, fmt.Errorf("zarr: reading array %s: %v", p, err)
	}
	attrs := make(map[string]interface{})
	if err := s.readJSON(ctx, s.key(p, ".zattrs"), &attrs); err == nil {
		a.Attrs = attrs
	}

	n := 1
	for _, l := range a.Shape {
		n *= l
	}
	a.Data = makeSlice(a.Dtype, n)

	rowLen := 1
	for _, l := range a.Shape[1:] {
		rowLen *= l
	}
	chunkRows := a.Chunks[0]
	nChunks := (a.Shape[0] + chunkRows - 1) / chunkRows
	if a.Shape[0] == 0 {
		nChunks = 0
	}
	for c := 0; c < nChunks; c++ {
		data, err := s.readBlob(ctx, s.key(p, chunkKey(c, len(a.Shape))))
		if err != nil {
			return nil, err
		}
		begin := c * chunkRows * rowLen
		end := begin + chunkRows*rowLen
		if end > n {
			end = n
		}
		dst := sliceRange(a.Data, begin, end)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("zarr: decoding chunk %d of %s: %v", c, p, err)
		}
	}
	return a, nil
}

// Groups returns the paths, relative to the store root, of all groups in
// the store, sorted lexically.
func (s *Store) Groups(ctx context.Context) ([]string, error) {
	var groups []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("zarr: listing store: %v", err)
		}
		if path.Base(obj.Key) == ".zgroup" {
			g := strings.Trim(strings.TrimPrefix(path.Dir(obj.Key), s.prefix), "/")
			if g != "" { // skip the root group
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

// FindStores returns the root prefixes, sorted lexically, of the Zarr
// stores (hierarchies rooted at a '*.zarr' key prefix) under prefix in
// bucket.
func FindStores(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var stores []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("zarr: listing stores under %s: %v", prefix, err)
		}
		dir := path.Dir(obj.Key)
		if path.Base(obj.Key) != ".zgroup" || !strings.HasSuffix(dir, ".zarr") {
			continue
		}
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			stores = append(stores, dir)
		}
	}
	sort.Strings(stores)
	return stores, nil
}

// Consolidate gathers all metadata documents in the store into a single
// .zmetadata document at the store root, allowing readers to open the
// hierarchy with one fetch.
func (s *Store) Consolidate(ctx context.Context) error {
	metadata := make(map[string]json.RawMessage)
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("zarr: consolidating metadata: %v", err)
		}
		base := path.Base(obj.Key)
		if base != ".zarray" && base != ".zgroup" && base != ".zattrs" {
			continue
		}
		data, err := s.readBlob(ctx, obj.Key)
		if err != nil {
			return err
		}
		rel := strings.Trim(strings.TrimPrefix(obj.Key, s.prefix), "/")
		metadata[rel] = json.RawMessage(data)
	}
	doc := map[string]interface{}{
		"metadata":                 metadata,
		"zarr_consolidated_format": 1,
	}
	return s.writeJSON(ctx, s.key(".zmetadata"), doc)
}

func (a *Array) check() error {
	if err := a.checkShape(); err != nil {
		return err
	}
	n := 1
	for _, l := range a.Shape {
		n *= l
	}
	if got := sliceLen(a.Data); got != n {
		return fmt.Errorf("data length %d does not match shape %v", got, a.Shape)
	}
	if want := dtypeFor(a.Data); want != a.Dtype {
		return fmt.Errorf("data type %T does not match dtype %s", a.Data, a.Dtype)
	}
	return nil
}

func (a *Array) checkShape() error {
	if len(a.Shape) == 0 || len(a.Chunks) != len(a.Shape) {
		return fmt.Errorf("shape %v and chunks %v must be non-empty and the same length", a.Shape, a.Chunks)
	}
	if a.Chunks[0] < 1 {
		return fmt.Errorf("chunk length %d along first dimension must be positive", a.Chunks[0])
	}
	for i := 1; i < len(a.Shape); i++ {
		if a.Chunks[i] != a.Shape[i] {
			return fmt.Errorf("chunking is only supported along the first dimension: chunks %v, shape %v", a.Chunks, a.Shape)
		}
	}
	return nil
}

// chunkKey returns the key of the i'th chunk along the first dimension of
// an ndim-dimensional array, e.g. "3.0" for a 2-d array.
func chunkKey(i, ndim int) string {
	parts := make([]string, ndim)
	parts[0] = strconv.Itoa(i)
	for d := 1; d < ndim; d++ {
		parts[d] = "0"
	}
	return strings.Join(parts, ".")
}

func sliceRange(data interface{}, begin, end int) interface{} {
	switch d := data.(type) {
	case []int8:
		return d[begin:end]
	case []int16:
		return d[begin:end]
	case []int32:
		return d[begin:end]
	case []int64:
		return d[begin:end]
	case []uint64:
		return d[begin:end]
	case []float32:
		return d[begin:end]
	case []float64:
		return d[begin:end]
	default:
		panic(fmt.Errorf("zarr: unsupported data type %T", data))
	}
}

func sliceLen(data interface{}) int {
	switch d := data.(type) {
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint64:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	default:
		return -1
	}
}

func dtypeFor(data interface{}) Dtype {
	switch data.(type) {
	case []int8:
		return Int8
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []uint64:
		return Uint64
	case []float32:
		return Float32
	case []float64:
		return Float64
	default:
		return ""
	}
}

// DtypeFor returns the dtype corresponding to the element type of data,
// which must be a slice of int8, uint8, int16, int32, int64, uint64,
// float32 or float64. Unsigned bytes map to Int8, matching the NetCDF
// BYTE type.
func DtypeFor(data interface{}) Dtype {
	if _, ok := data.([]uint8); ok {
		return Int8
	}
	if d := dtypeFor(data); d != "" {
		return d
	}
	panic(fmt.Errorf("zarr: unsupported data type %T", data))
}

// Cast converts data element-wise to the slice type corresponding to d.
// If data already has the right type it is returned unchanged.
func Cast(data interface{}, d Dtype) interface{} {
	if dtypeFor(data) == d {
		return data
	}
	f := toFloat64s(data)
	switch d {
	case Int8:
		o := make([]int8, len(f))
		for i, v := range f {
			o[i] = int8(v)
		}
		return o
	case Int16:
		o := make([]int16, len(f))
		for i, v := range f {
			o[i] = int16(v)
		}
		return o
	case Int32:
		o := make([]int32, len(f))
		for i, v := range f {
			o[i] = int32(v)
		}
		return o
	case Int64:
		o := make([]int64, len(f))
		for i, v := range f {
			o[i] = int64(v)
		}
		return o
	case Uint64:
		o := make([]uint64, len(f))
		for i, v := range f {
			o[i] = uint64(v)
		}
		return o
	case Float32:
		o := make([]float32, len(f))
		for i, v := range f {
			o[i] = float32(v)
		}
		return o
	case Float64:
		return f
	default:
		panic(fmt.Errorf("zarr: invalid dtype '%s'", string(d)))
	}
}

func toFloat64s(data interface{}) []float64 {
	switch t := data.(type) {
	case []int8:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []uint8:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(int8(v))
		}
		return o
	case []int16:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []int32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []int64:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []uint64:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []float32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o
	case []float64:
		o := make([]float64, len(t))
		copy(o, t)
		return o
	default:
		panic(fmt.Errorf("zarr: unsupported data type %T", data))
	}
}

func makeSlice(d Dtype, n int) interface{} {
	switch d {
	case Int8:
		return make([]int8, n)
	case Int16:
		return make([]int16, n)
	case Int32:
		return make([]int32, n)
	case Int64:
		return make([]int64, n)
	case Uint64:
		return make([]uint64, n)
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	default:
		panic(fmt.Errorf("zarr: invalid dtype '%s'", string(d)))
	}
}

// readBlob reads the given blob from the store's bucket.
func (s *Store) readBlob(ctx context.Context, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("zarr: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	if _, err := io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("zarr: reading blob key %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// writeBlob writes the given data to the store's bucket.
func (s *Store) writeBlob(ctx context.Context, key string, data []byte) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("zarr: creating writer for blob %s: %v", key, err)
	}
	if _, err := io.Copy(w, bytes.NewBuffer(data)); err != nil {
		return fmt.Errorf("zarr: copying blob %s: %v", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("zarr: writing blob %s: %v", key, err)
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v interface{}) error {
	b := new(bytes.Buffer)
	e := json.NewEncoder(b)
	e.SetIndent("", "    ")
	if err := e.Encode(v); err != nil {
		return fmt.Errorf("zarr: encoding metadata %s: %v", key, err)
	}
	return s.writeBlob(ctx, key, b.Bytes())
}

func (s *Store) readJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.readBlob(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("zarr: decoding metadata %s: %v", key, err)
	}
	return nil
}
