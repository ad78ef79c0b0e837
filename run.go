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
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// RunConfig configures the local execution of a joblist.
type RunConfig struct {
	// Workers is the number of commands run concurrently.
	// If it is less than 1, GOMAXPROCS is used.
	Workers int

	// Shell is the shell the command lines are run with.
	// The default is "sh".
	Shell string

	// Log receives structured progress information. If it is nil, the
	// standard logger is used.
	Log logrus.FieldLogger
}

func (c *RunConfig) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *RunConfig) workers() int {
	if c.Workers < 1 {
		return runtime.GOMAXPROCS(-1)
	}
	return c.Workers
}

func (c *RunConfig) shell() string {
	if c.Shell == "" {
		return "sh"
	}
	return c.Shell
}

// ReadJoblist reads one command line per row from r, skipping blank
// lines and lines starting with '#'.
func ReadJoblist(r io.Reader) ([]string, error) {
	var cmds []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmds = append(cmds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("icepipe: reading joblist: %v", err)
	}
	return cmds, nil
}

// ReadJoblistFile reads a joblist from the named file.
func ReadJoblistFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("icepipe: opening joblist: %v", err)
	}
	defer f.Close()
	return ReadJoblist(f)
}

// RunJoblist runs the given command lines through the shell with bounded
// parallelism, stopping at the first failure. Progress messages are sent
// to msgChan if it is not nil.
func RunJoblist(ctx context.Context, cmds []string, cfg *RunConfig, msgChan chan string) error {
	if cfg == nil {
		cfg = &RunConfig{}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	workers := cfg.workers()
	jobChan := make(chan int, len(cmds))
	errChan := make(chan error)
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobChan {
				if err := ctx.Err(); err != nil {
					errChan <- err
					return
				}
				cfg.log().WithField("job", i).Info("running job")
				xcmd := exec.Command(cfg.shell(), "-c", cmds[i])
				o, err := xcmd.CombinedOutput()
				if err != nil {
					errChan <- fmt.Errorf("icepipe: job %d (%s) failed: %v; output: %s", i, cmds[i], err, string(o))
					return
				}
				if msgChan != nil {
					msgChan <- fmt.Sprintf("Finished job %d of %d\n", i+1, len(cmds))
				}
			}
			errChan <- nil
		}()
	}
	for i := range cmds {
		jobChan <- i
	}
	close(jobChan)
	var firstErr error
	for w := 0; w < workers; w++ {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
			cancel() // the remaining workers skip their queued jobs
		}
	}
	return firstErr
}
