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
	"testing"
	"time"
)

func TestParseATL06(t *testing.T) {
	g, err := ParseATL06("ATL06.003/02/ATL06_20190225121104_08930212_003_01.h5")
	if err != nil {
		t.Fatal(err)
	}
	wantStart := time.Date(2019, 2, 25, 12, 11, 4, 0, time.UTC)
	if !g.Start.Equal(wantStart) {
		t.Errorf("start time: have %v, want %v", g.Start, wantStart)
	}
	if g.ReferenceGroundTrack != "0893" {
		t.Errorf("reference ground track: have %s, want 0893", g.ReferenceGroundTrack)
	}
	if g.Cycle != "02" {
		t.Errorf("cycle: have %s, want 02", g.Cycle)
	}
	if g.OrbitalSegment != "12" {
		t.Errorf("orbital segment: have %s, want 12", g.OrbitalSegment)
	}
	if g.Version != "003" {
		t.Errorf("version: have %s, want 003", g.Version)
	}
	if g.Revision != "01" {
		t.Errorf("revision: have %s, want 01", g.Revision)
	}
	if g.Path != "ATL06.003/02/ATL06_20190225121104_08930212_003_01.h5" {
		t.Errorf("unexpected path %s", g.Path)
	}
}

func TestParseATL06_errors(t *testing.T) {
	bad := []string{
		"ATL06_20190225121104_08930212_003_01.h5.bak",
		"ATL06_20190225121104_08930212_003_1.h5",
		"ATL07_20190225121104_08930212_003_01.h5",
		"ATL06_20191325121104_08930212_003_01.h5", // month 13
		"ATL06_20190225121104_08930212_003_0a.h5",
		"ATL06_20190225121104_0893x212_003_01.h5",
	}
	for _, name := range bad {
		if _, err := ParseATL06(name); err == nil {
			t.Errorf("expected an error for %s", name)
		}
	}
}

func TestParseATL11(t *testing.T) {
	g, err := ParseATL11("ATL11/ATL11_089312_0307_003_01.h5")
	if err != nil {
		t.Fatal(err)
	}
	if g.ReferenceGroundTrack != "0893" {
		t.Errorf("reference ground track: have %s, want 0893", g.ReferenceGroundTrack)
	}
	if g.OrbitalSegment != "12" {
		t.Errorf("orbital segment: have %s, want 12", g.OrbitalSegment)
	}
	if g.FirstCycle != "03" || g.LastCycle != "07" {
		t.Errorf("cycles: have %s-%s, want 03-07", g.FirstCycle, g.LastCycle)
	}
	if g.Version != "003" {
		t.Errorf("version: have %s, want 003", g.Version)
	}
	if g.Revision != "01" {
		t.Errorf("revision: have %s, want 01", g.Revision)
	}
	if name := g.Filename(); name != "ATL11_089312_0307_003_01.h5" {
		t.Errorf("filename roundtrip: have %s", name)
	}
}

func TestParseATL11_errors(t *testing.T) {
	bad := []string{
		"ATL11_089312_0307_003_01.nc",
		"ATL11_089312_0307_003_001.h5",
		"ATL06_089312_0307_003_01.h5",
		"ATL11_08931x_0307_003_01.h5",
	}
	for _, name := range bad {
		if _, err := ParseATL11(name); err == nil {
			t.Errorf("expected an error for %s", name)
		}
	}
}
