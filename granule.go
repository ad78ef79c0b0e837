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
	"path/filepath"
	"time"
)

// An ATL06Granule is a single ATL06 land-ice height input file, identified
// by the reference ground track, cycle, orbital segment, version and
// revision that are encoded positionally in its filename:
//
//	ATL06_yyyymmddhhmmss_ttttccss_vvv_rr.h5
//
// where tttt is the reference ground track, cc the cycle, ss the orbital
// segment, vvv the product version and rr the file revision.
type ATL06Granule struct {
	// Start is the acquisition start time encoded in the filename.
	Start time.Time

	ReferenceGroundTrack string // four digits, zero padded
	Cycle                string // two digits, zero padded
	OrbitalSegment       string // two digits
	Version              string // three digits
	Revision             string // two digits

	// Path is the location the granule was found at.
	Path string
}

// An ATL11Granule is a single ATL11 land-ice height-change output file
// produced by the external converter, named
//
//	ATL11_ttttss_c₁c₂_vvv_rr.h5
//
// where c₁ and c₂ are the first and last cycle contributing to the track.
type ATL11Granule struct {
	ReferenceGroundTrack string
	OrbitalSegment       string
	FirstCycle           string
	LastCycle            string
	Version              string
	Revision             string

	Path string
}

const (
	atl06NameLen = len("ATL06_yyyymmddhhmmss_ttttccss_vvv_rr.h5")
	atl11NameLen = len("ATL11_ttttss_ccss_vvv_rr.h5")

	granuleTimeFormat = "20060102150405"
)

// ParseATL06 extracts the granule identifiers from the filename of path.
// Identifiers are located by fixed offsets within the base name.
func ParseATL06(path string) (ATL06Granule, error) {
	name := filepath.Base(path)
	if len(name) != atl06NameLen {
		return ATL06Granule{}, fmt.Errorf("icepipe: ATL06 granule name '%s' should be %d characters long but is %d", name, atl06NameLen, len(name))
	}
	if name[0:6] != "ATL06_" || filepath.Ext(name) != ".h5" {
		return ATL06Granule{}, fmt.Errorf("icepipe: '%s' is not an ATL06 granule name", name)
	}
	g := ATL06Granule{
		ReferenceGroundTrack: name[21:25],
		Cycle:                name[25:27],
		OrbitalSegment:       name[27:29],
		Version:              name[30:33],
		Revision:             name[34:36],
		Path:                 path,
	}
	var err error
	g.Start, err = time.Parse(granuleTimeFormat, name[6:20])
	if err != nil {
		return ATL06Granule{}, fmt.Errorf("icepipe: parsing ATL06 granule time in '%s': %v", name, err)
	}
	for _, field := range []string{g.ReferenceGroundTrack, g.Cycle, g.OrbitalSegment, g.Version, g.Revision} {
		if !allDigits(field) {
			return ATL06Granule{}, fmt.Errorf("icepipe: non-numeric identifier '%s' in ATL06 granule name '%s'", field, name)
		}
	}
	return g, nil
}

// ParseATL11 extracts the granule identifiers from the filename of path.
func ParseATL11(path string) (ATL11Granule, error) {
	name := filepath.Base(path)
	if len(name) != atl11NameLen {
		return ATL11Granule{}, fmt.Errorf("icepipe: ATL11 granule name '%s' should be %d characters long but is %d", name, atl11NameLen, len(name))
	}
	if name[0:6] != "ATL11_" || filepath.Ext(name) != ".h5" {
		return ATL11Granule{}, fmt.Errorf("icepipe: '%s' is not an ATL11 granule name", name)
	}
	g := ATL11Granule{
		ReferenceGroundTrack: name[6:10],
		OrbitalSegment:       name[10:12],
		FirstCycle:           name[13:15],
		LastCycle:            name[15:17],
		Version:              name[18:21],
		Revision:             name[22:24],
		Path:                 path,
	}
	for _, field := range []string{g.ReferenceGroundTrack, g.OrbitalSegment, g.FirstCycle, g.LastCycle, g.Version, g.Revision} {
		if !allDigits(field) {
			return ATL11Granule{}, fmt.Errorf("icepipe: non-numeric identifier '%s' in ATL11 granule name '%s'", field, name)
		}
	}
	return g, nil
}

// Filename returns the canonical file name for the granule.
func (g ATL11Granule) Filename() string {
	return fmt.Sprintf("ATL11_%s%s_%s%s_%s_%s.h5",
		g.ReferenceGroundTrack, g.OrbitalSegment, g.FirstCycle, g.LastCycle, g.Version, g.Revision)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
