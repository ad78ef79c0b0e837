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

package cloud

// Status is the run status of a distributed processing job.
type Status int32

// The possible job statuses.
const (
	StatusComplete Status = iota
	StatusFailed
	StatusMissing
	StatusRunning
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "Complete"
	case StatusFailed:
		return "Failed"
	case StatusMissing:
		return "Missing"
	case StatusRunning:
		return "Running"
	case StatusWaiting:
		return "Waiting"
	default:
		return "Unknown"
	}
}

// A JobSpec specifies a distributed processing job.
type JobSpec struct {
	// Version is the icepipe version the job must run with.
	Version string

	// Name uniquely identifies the job for its user.
	Name string

	// Cmd is the command to be run, e.g. [icepipe convert].
	Cmd []string

	// Args are the command-line arguments to Cmd.
	Args []string

	// MemoryGB is the required gigabytes of RAM.
	MemoryGB int32

	// FileData holds the contents of any local input files, keyed by
	// their content-addressed names.
	FileData map[string][]byte
}

// A JobName identifies an existing job.
type JobName struct {
	Name    string
	Version string
}

// A JobStatus describes the current state of a job.
type JobStatus struct {
	Status  Status
	Message string

	// StartTime and CompletionTime are Unix times in seconds.
	StartTime      int64
	CompletionTime int64
}

// A JobOutput holds the contents of a finished job's output files,
// keyed by file name.
type JobOutput struct {
	Files map[string][]byte
}
