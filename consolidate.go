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

// DefaultSegments are the orbital segments covering the Antarctic
// continent. Every reference ground track is expected to produce one
// ATL11 granule per segment.
var DefaultSegments = []string{"10", "11", "12"}

// A TrackSet is the group of per-orbital-segment ATL11 granules belonging
// to a single reference ground track.
type TrackSet struct {
	ReferenceGroundTrack string

	// Granules are sorted by orbital segment.
	Granules []ATL11Granule
}

// Name returns the consolidated per-track dataset name, with the orbital
// segment digits dropped from the granule naming pattern:
// ATL11_tttt_c₁c₂_vvv_rr.
func (t *TrackSet) Name() string {
	g := t.Granules[0]
	return fmt.Sprintf("ATL11_%s_%s%s_%s_%s",
		t.ReferenceGroundTrack, g.FirstCycle, g.LastCycle, g.Version, g.Revision)
}

// ConsolidateConfig configures the grouping of per-segment ATL11 granules
// into per-track sets.
type ConsolidateConfig struct {
	// Segments are the orbital segments every track is expected to
	// have a granule for. Defaults to DefaultSegments.
	Segments []string

	// Exceptions maps reference ground tracks to the orbital segments
	// they are expected to have, overriding Segments. The ATLAS mission
	// has a small number of tracks whose coverage legitimately misses a
	// segment; those are listed here rather than failing the run.
	Exceptions map[string][]string
}

func (c *ConsolidateConfig) expected(track string) []string {
	if segs, ok := c.Exceptions[track]; ok {
		return segs
	}
	if len(c.Segments) == 0 {
		return DefaultSegments
	}
	return c.Segments
}

// GroupTracks scans dir for ATL11 granules and groups them by reference
// ground track, verifying that each track has exactly the expected
// orbital-segment files. A track with an unexpected file count halts
// processing with an error; there is no partial recovery.
func GroupTracks(dir string, cfg *ConsolidateConfig) ([]TrackSet, error) {
	if cfg == nil {
		cfg = &ConsolidateConfig{}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "ATL11_*.h5"))
	if err != nil {
		return nil, fmt.Errorf("icepipe: globbing ATL11 granules: %v", err)
	}
	// Also look one level down, where Consolidate places the granules.
	nested, err := filepath.Glob(filepath.Join(dir, "*", "ATL11_*.h5"))
	if err != nil {
		return nil, fmt.Errorf("icepipe: globbing ATL11 granules: %v", err)
	}
	matches = append(matches, nested...)
	if len(matches) == 0 {
		return nil, fmt.Errorf("icepipe: no ATL11 granules found in %s", dir)
	}

	byTrack := make(map[string][]ATL11Granule)
	for _, m := range matches {
		g, err := ParseATL11(m)
		if err != nil {
			return nil, err
		}
		byTrack[g.ReferenceGroundTrack] = append(byTrack[g.ReferenceGroundTrack], g)
	}

	tracks := make([]string, 0, len(byTrack))
	for t := range byTrack {
		tracks = append(tracks, t)
	}
	sort.Strings(tracks)

	sets := make([]TrackSet, 0, len(tracks))
	for _, track := range tracks {
		granules := byTrack[track]
		sort.Slice(granules, func(i, j int) bool {
			return granules[i].OrbitalSegment < granules[j].OrbitalSegment
		})
		want := cfg.expected(track)
		if err := checkSegments(track, granules, want); err != nil {
			return nil, err
		}
		sets = append(sets, TrackSet{ReferenceGroundTrack: track, Granules: granules})
	}
	return sets, nil
}

// checkSegments verifies the cardinality and segment coverage of one track.
func checkSegments(track string, granules []ATL11Granule, want []string) error {
	if len(granules) != len(want) {
		return fmt.Errorf("icepipe: track %s has %d orbital segment files %v, expected %d (%s)",
			track, len(granules), segmentsOf(granules), len(want), strings.Join(want, ","))
	}
	for i, g := range granules {
		if g.OrbitalSegment != want[i] {
			return fmt.Errorf("icepipe: track %s has orbital segments %v, expected %s",
				track, segmentsOf(granules), strings.Join(want, ","))
		}
	}
	return nil
}

func segmentsOf(granules []ATL11Granule) []string {
	o := make([]string, len(granules))
	for i, g := range granules {
		o[i] = g.OrbitalSegment
	}
	return o
}

// Consolidate moves the granules of each track set into a per-track
// subdirectory of dir named after the consolidated dataset, e.g.
//
//	ATL11_0027_0307_003_01/ATL11_002710_0307_003_01.h5
//
// and returns the updated track sets. The move is a rename; source and
// destination are expected to be on the same filesystem.
func Consolidate(dir string, sets []TrackSet) ([]TrackSet, error) {
	out := make([]TrackSet, len(sets))
	for i, ts := range sets {
		tdir := filepath.Join(dir, ts.Name())
		if err := os.MkdirAll(tdir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("icepipe: creating track directory: %v", err)
		}
		nt := TrackSet{ReferenceGroundTrack: ts.ReferenceGroundTrack}
		for _, g := range ts.Granules {
			dst := filepath.Join(tdir, g.Filename())
			if err := os.Rename(g.Path, dst); err != nil {
				return nil, fmt.Errorf("icepipe: consolidating track %s: %v", ts.ReferenceGroundTrack, err)
			}
			g.Path = dst
			nt.Granules = append(nt.Granules, g)
		}
		out[i] = nt
	}
	return out, nil
}
