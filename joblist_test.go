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
	"bytes"
	"testing"
)

func TestJoblistCommand(t *testing.T) {
	c := &JoblistConfig{
		Converter: "python3 ATL11/ATL06_to_ATL11.py",
		Release:   "003",
		InputDir:  "ATL06.003",
		OutputDir: "ATL11",
	}
	u := &WorkUnit{
		ReferenceGroundTrack: "0893",
		OrbitalSegment:       "12",
		Cycles:               []string{"03", "05", "07"},
	}
	want := "python3 ATL11/ATL06_to_ATL11.py 0893 12 --cycles 03 07 --Release 003 --directory 'ATL06.003/**/' --out_dir ATL11"
	if have := c.Command(u); have != want {
		t.Errorf("have %s\nwant %s", have, want)
	}
}

func TestWriteJoblist(t *testing.T) {
	c := &JoblistConfig{
		Converter: "python3 ATL11/ATL06_to_ATL11.py",
		Release:   "003",
		InputDir:  "ATL06.003",
		OutputDir: "ATL11",
	}
	units := []WorkUnit{
		{ReferenceGroundTrack: "0027", OrbitalSegment: "10", Cycles: []string{"02", "07"}},
		{ReferenceGroundTrack: "0893", OrbitalSegment: "12", Cycles: []string{"03"}},
	}
	var b bytes.Buffer
	n, err := WriteJoblist(&b, units, c)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("lines written: have %d, want 2", n)
	}
	want := "python3 ATL11/ATL06_to_ATL11.py 0027 10 --cycles 02 07 --Release 003 --directory 'ATL06.003/**/' --out_dir ATL11\n" +
		"python3 ATL11/ATL06_to_ATL11.py 0893 12 --cycles 03 03 --Release 003 --directory 'ATL06.003/**/' --out_dir ATL11\n"
	if b.String() != want {
		t.Errorf("have:\n%swant:\n%s", b.String(), want)
	}
}

func TestWriteJoblist_noConverter(t *testing.T) {
	var b bytes.Buffer
	if _, err := WriteJoblist(&b, []WorkUnit{{}}, &JoblistConfig{}); err == nil {
		t.Error("expected an error when no converter is configured")
	}
}
