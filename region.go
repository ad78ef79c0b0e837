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
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// A Region is a rectangular area of interest in Antarctic Polar
// Stereographic (EPSG:3031) coordinates.
type Region struct {
	// Name is a short machine-friendly identifier, e.g. "kamb".
	Name string

	// LongName is the human-readable place name.
	LongName string

	// Bounds are the region extents in EPSG:3031 metres.
	Bounds *geom.Bounds
}

// NewRegion creates a region from its EPSG:3031 extents.
func NewRegion(name, longName string, xmin, xmax, ymin, ymax float64) Region {
	return Region{
		Name:     name,
		LongName: longName,
		Bounds: &geom.Bounds{
			Min: geom.Point{X: xmin, Y: ymin},
			Max: geom.Point{X: xmax, Y: ymax},
		},
	}
}

// Regions are the named Antarctic areas of interest.
var Regions = map[string]Region{
	"antarctica": NewRegion("antarctica", "Antarctica",
		-2700000, 2800000, -2200000, 2300000),
	"kamb": NewRegion("kamb", "Kamb Ice Stream",
		-739741.7702261859, -411054.19240523444, -699564.516934089, -365489.6822096751),
	"kamb2": NewRegion("kamb2", "Kamb Ice Stream (zoom)",
		-500000, -400000, -600000, -500000),
	"siple_coast": NewRegion("siple_coast", "Siple Coast",
		-1000000, 250000, -1000000, -100000),
	"whillans": NewRegion("whillans", "Whillans Ice Stream",
		-350000, -100000, -700000, -450000),
}

// GetRegion returns the named region.
func GetRegion(name string) (Region, error) {
	r, ok := Regions[name]
	if !ok {
		names := make([]string, 0, len(Regions))
		for n := range Regions {
			names = append(names, n)
		}
		sort.Strings(names)
		return Region{}, fmt.Errorf("icepipe: unknown region %q; the available regions are %v", name, names)
	}
	return r, nil
}

// Contains reports whether the point (x, y), in EPSG:3031 metres, lies
// within the region.
func (r Region) Contains(x, y float64) bool {
	return r.Bounds.Overlaps(geom.NewBoundsPoint(geom.Point{X: x, Y: y}))
}

// Scale returns how many kilometres across the region is, rounded to the
// larger of its two extents. It is useful for choosing map scales and
// output resolutions.
func (r Region) Scale() float64 {
	dx := r.Bounds.Max.X - r.Bounds.Min.X
	dy := r.Bounds.Max.Y - r.Bounds.Min.Y
	return math.Max(dx, dy) / 1000
}

// Antarctic Polar Stereographic (EPSG:3031) constants: WGS84 ellipsoid
// with the standard parallel at 71°S and the central meridian at 0°E.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	stdLat = -71.0
)

// LonLatToXY transforms WGS84 geodetic coordinates, in degrees, to
// Antarctic Polar Stereographic (EPSG:3031) metres.
//
// The formulation follows Snyder, Map Projections: A Working Manual,
// USGS Professional Paper 1395, eq. 21-33/34 (south polar aspect with a
// standard parallel).
func LonLatToXY(lon, lat float64) (x, y float64) {
	e2 := wgs84F * (2 - wgs84F)
	e := math.Sqrt(e2)

	// South polar aspect: flip the latitude signs so the pole is at +90.
	// The grid y axis points along the 0° meridian.
	phi := -lat * math.Pi / 180
	lam := lon * math.Pi / 180
	phiC := -stdLat * math.Pi / 180

	t := func(phi float64) float64 {
		esin := e * math.Sin(phi)
		return math.Tan(math.Pi/4-phi/2) / math.Pow((1-esin)/(1+esin), e/2)
	}
	m := func(phi float64) float64 {
		s := math.Sin(phi)
		return math.Cos(phi) / math.Sqrt(1-e2*s*s)
	}

	rho := wgs84A * m(phiC) * t(phi) / t(phiC)
	x = rho * math.Sin(lam)
	y = rho * math.Cos(lam)
	return x, y
}
