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
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeEmptyFiles creates the given files under dir, making parent
// directories as needed.
func writeEmptyFiles(t *testing.T, dir string, names []string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscoverWorkUnits(t *testing.T) {
	dir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	writeEmptyFiles(t, dir, []string{
		"02/ATL06_20190225121104_08930212_003_01.h5",
		"03/ATL06_20190527121104_08930312_003_01.h5",
		"02/ATL06_20190226121104_00270211_003_01.h5",
		"02/ATL06_20190226121104_00270210_003_01.h5",
		"07/ATL06_20200526121104_08930712_003_01.h5",
		"02/README.txt", // ignored
	})

	units, err := DiscoverWorkUnits(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []WorkUnit{
		{ReferenceGroundTrack: "0027", OrbitalSegment: "10", Cycles: []string{"02"}},
		{ReferenceGroundTrack: "0027", OrbitalSegment: "11", Cycles: []string{"02"}},
		{ReferenceGroundTrack: "0893", OrbitalSegment: "12", Cycles: []string{"02", "03", "07"}},
	}
	if !reflect.DeepEqual(units, want) {
		t.Errorf("have %+v, want %+v", units, want)
	}
	u := &units[2]
	if u.FirstCycle() != "02" || u.LastCycle() != "07" {
		t.Errorf("cycle range: have %s-%s, want 02-07", u.FirstCycle(), u.LastCycle())
	}
}

func TestDiscoverWorkUnits_empty(t *testing.T) {
	dir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if _, err := DiscoverWorkUnits(dir); err == nil {
		t.Error("expected an error for a directory without granules")
	}
}

func TestDiscoverWorkUnits_badName(t *testing.T) {
	dir, err := ioutil.TempDir("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	writeEmptyFiles(t, dir, []string{"02/ATL06_20190225121104_0893021x_003_01.h5"})
	if _, err := DiscoverWorkUnits(dir); err == nil {
		t.Error("expected an error for a malformed granule name")
	}
}
