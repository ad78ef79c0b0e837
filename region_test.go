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
	"math"
	"testing"
)

func TestGetRegion(t *testing.T) {
	r, err := GetRegion("kamb")
	if err != nil {
		t.Fatal(err)
	}
	if r.LongName != "Kamb Ice Stream" {
		t.Errorf("have %s", r.LongName)
	}
	if _, err := GetRegion("greenland"); err == nil {
		t.Error("expected an error for an unknown region")
	}
}

func TestRegionContains(t *testing.T) {
	r, err := GetRegion("kamb2")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Contains(-450000, -550000) {
		t.Error("point inside the region reported as outside")
	}
	if r.Contains(0, 0) {
		t.Error("point outside the region reported as inside")
	}
}

func TestRegionScale(t *testing.T) {
	r, err := GetRegion("antarctica")
	if err != nil {
		t.Fatal(err)
	}
	if s := r.Scale(); s != 5500 {
		t.Errorf("scale: have %g, want 5500", s)
	}
}

func TestLonLatToXY(t *testing.T) {
	// The south pole is the projection origin.
	x, y := LonLatToXY(0, -90)
	if math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("south pole: have (%g, %g), want (0, 0)", x, y)
	}

	// The 0° meridian runs along the positive y axis, and the radius at
	// the standard parallel is a bit over 2000 km.
	x, y = LonLatToXY(0, -71)
	if math.Abs(x) > 1e-6 {
		t.Errorf("prime meridian: have x = %g, want 0", x)
	}
	if y < 2.0e6 || y > 2.2e6 {
		t.Errorf("standard parallel radius: have %g", y)
	}

	// Mirrored longitudes give mirrored x and equal y.
	x1, y1 := LonLatToXY(137, -78)
	x2, y2 := LonLatToXY(-137, -78)
	if math.Abs(x1+x2) > 1e-6 || math.Abs(y1-y2) > 1e-6 {
		t.Errorf("mirrored longitudes: have (%g, %g) and (%g, %g)", x1, y1, x2, y2)
	}

	// Points closer to the pole project closer to the origin.
	xa, ya := LonLatToXY(45, -75)
	xb, yb := LonLatToXY(45, -85)
	if math.Hypot(xb, yb) >= math.Hypot(xa, ya) {
		t.Error("radius should shrink toward the pole")
	}
}

func TestLonLatToXY_whillans(t *testing.T) {
	// A point on the Whillans Ice Stream should project into the
	// catalogued region bounds.
	r, err := GetRegion("whillans")
	if err != nil {
		t.Fatal(err)
	}
	x, y := LonLatToXY(-155, -84)
	if !r.Contains(x, y) {
		t.Errorf("(%g, %g) should fall within %v", x, y, r.Bounds)
	}
}
