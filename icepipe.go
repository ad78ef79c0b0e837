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

// Package icepipe orchestrates the conversion of ICESat-2 ATL06 land-ice
// height granules into ATL11 land-ice height-change products and repackages
// the result into chunked, cloud-friendly Zarr stores.
//
// The ATL06→ATL11 science algorithm itself is an external program; this
// package discovers work units from granule filenames, generates the job
// list that drives the external converter, runs those jobs locally or on a
// Kubernetes cluster, consolidates the per-orbital-segment outputs into
// per-track datasets, and converts the consolidated datasets into Zarr.
package icepipe

// Version gives the version of icepipe.
const Version = "0.3.0"
