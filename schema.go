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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spatialmodel/icepipe/zarr"
)

// An Encoding describes how one ATL11 field should be stored in the
// output store.
type Encoding struct {
	Dtype    zarr.Dtype
	LongName string
	Units    string
}

// A Schema maps field names to their output encodings. It is derived from
// the product data dictionary, a CSV table with the columns
// field, datatype, long_name, units.
type Schema map[string]Encoding

// ReadSchema parses a data-dictionary CSV table. The first row must be a
// header row naming at least the field and datatype columns.
func ReadSchema(r io.Reader) (Schema, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("icepipe: reading schema CSV: %v", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("icepipe: schema CSV has no data rows")
	}
	col := make(map[string]int)
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"field", "datatype"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("icepipe: schema CSV is missing the '%s' column", required)
		}
	}

	schema := make(Schema, len(rows)-1)
	for i, row := range rows[1:] {
		field := strings.TrimSpace(row[col["field"]])
		if field == "" {
			return nil, fmt.Errorf("icepipe: schema CSV row %d has an empty field name", i+2)
		}
		dtype, err := zarr.DtypeOf(row[col["datatype"]])
		if err != nil {
			return nil, fmt.Errorf("icepipe: schema CSV row %d: %v", i+2, err)
		}
		e := Encoding{Dtype: dtype}
		if j, ok := col["long_name"]; ok && j < len(row) {
			e.LongName = strings.TrimSpace(row[j])
		}
		if j, ok := col["units"]; ok && j < len(row) {
			e.Units = strings.TrimSpace(row[j])
		}
		schema[field] = e
	}
	return schema, nil
}

// ReadSchemaFile reads a data-dictionary CSV from the named file.
func ReadSchemaFile(path string) (Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("icepipe: opening schema CSV: %v", err)
	}
	defer f.Close()
	return ReadSchema(f)
}
