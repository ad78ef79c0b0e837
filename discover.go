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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// A WorkUnit is one invocation of the external ATL06→ATL11 converter:
// a (reference ground track, orbital segment) combination together with
// the cycles for which ATL06 granules are available.
type WorkUnit struct {
	ReferenceGroundTrack string
	OrbitalSegment       string

	// Cycles holds the available cycle numbers, sorted ascending.
	// Cycle numbers are zero-padded so string order equals numeric order.
	Cycles []string
}

// FirstCycle returns the earliest available cycle.
func (u *WorkUnit) FirstCycle() string { return u.Cycles[0] }

// LastCycle returns the latest available cycle.
func (u *WorkUnit) LastCycle() string { return u.Cycles[len(u.Cycles)-1] }

// DiscoverWorkUnits walks dir (which typically holds one subdirectory per
// cycle) for ATL06 granules and groups them into work units.
// The returned units are sorted by reference ground track and then by
// orbital segment.
func DiscoverWorkUnits(dir string) ([]WorkUnit, error) {
	granules, err := findATL06(dir)
	if err != nil {
		return nil, err
	}
	if len(granules) == 0 {
		return nil, fmt.Errorf("icepipe: no ATL06 granules found under %s", dir)
	}

	type key struct{ track, segment string }
	cycles := make(map[key]map[string]struct{})
	for _, g := range granules {
		k := key{g.ReferenceGroundTrack, g.OrbitalSegment}
		if cycles[k] == nil {
			cycles[k] = make(map[string]struct{})
		}
		cycles[k][g.Cycle] = struct{}{}
	}

	units := make([]WorkUnit, 0, len(cycles))
	for k, cs := range cycles {
		u := WorkUnit{ReferenceGroundTrack: k.track, OrbitalSegment: k.segment}
		for c := range cs {
			u.Cycles = append(u.Cycles, c)
		}
		sort.Strings(u.Cycles)
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].ReferenceGroundTrack != units[j].ReferenceGroundTrack {
			return units[i].ReferenceGroundTrack < units[j].ReferenceGroundTrack
		}
		return units[i].OrbitalSegment < units[j].OrbitalSegment
	})
	return units, nil
}

// findATL06 returns all ATL06 granules underneath dir.
func findATL06(dir string) ([]ATL06Granule, error) {
	var granules []ATL06Granule
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if !strings.HasPrefix(name, "ATL06_") || filepath.Ext(name) != ".h5" {
			return nil
		}
		g, err := ParseATL06(path)
		if err != nil {
			return err
		}
		granules = append(granules, g)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("icepipe: discovering ATL06 granules: %v", err)
	}
	return granules, nil
}
