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
	"bufio"
	"fmt"
	"io"
)

// JoblistConfig holds the configuration for generating the shell command
// lines that drive the external ATL06→ATL11 converter.
type JoblistConfig struct {
	// Converter is the command that runs the external ATL06→ATL11
	// converter, e.g. "python3 ATL11/ATL06_to_ATL11.py".
	Converter string

	// Release is the ATL11 release number passed to the converter,
	// e.g. "003".
	Release string

	// InputDir is the directory tree holding the ATL06 granules.
	InputDir string

	// OutputDir is the directory the converter should write ATL11
	// granules to.
	OutputDir string
}

// Command formats the converter invocation for a single work unit.
// The cycle range is the first and last cycle for which ATL06 granules
// exist for the unit's (track, segment) combination.
func (c *JoblistConfig) Command(u *WorkUnit) string {
	return fmt.Sprintf("%s %s %s --cycles %s %s --Release %s --directory '%s/**/' --out_dir %s",
		c.Converter, u.ReferenceGroundTrack, u.OrbitalSegment,
		u.FirstCycle(), u.LastCycle(), c.Release, c.InputDir, c.OutputDir)
}

// WriteJoblist writes one converter command line per work unit to w,
// suitable for consumption by a generic parallel job runner.
// It returns the number of lines written.
func WriteJoblist(w io.Writer, units []WorkUnit, c *JoblistConfig) (int, error) {
	if c.Converter == "" {
		return 0, fmt.Errorf("icepipe: no converter command configured")
	}
	bw := bufio.NewWriter(w)
	for i := range units {
		if _, err := fmt.Fprintln(bw, c.Command(&units[i])); err != nil {
			return i, fmt.Errorf("icepipe: writing joblist: %v", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(units), fmt.Errorf("icepipe: writing joblist: %v", err)
	}
	return len(units), nil
}
