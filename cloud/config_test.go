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

import (
	"context"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/spatialmodel/icepipe"
)

func contextWithUser() context.Context {
	return context.WithValue(context.Background(), "user", "test_user")
}

func TestNewJobSpec(t *testing.T) {
	schemaFile, err := ioutil.TempFile("", "schema*.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(schemaFile.Name())
	if _, err := schemaFile.WriteString("field,datatype\nh_corr,float32\n"); err != nil {
		t.Fatal(err)
	}
	schemaFile.Close()
	const schemaSum = "1dc277079a1641faf22988570e2eb6942b8cb3d363fade7f0c8ef6f5206b6931"

	root, config := testCmd()
	config.Set("schema", schemaFile.Name())

	js, err := NewJobSpec(root, config, icepipe.Version, "test_job", []string{"joblist"},
		[]string{"schema"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if js.Version != icepipe.Version {
		t.Errorf("version: %s != %s", js.Version, icepipe.Version)
	}
	wantCmd := []string{"icepipe", "joblist"}
	if !reflect.DeepEqual(js.Cmd, wantCmd) {
		t.Errorf("cmd: %s != %s", js.Cmd, wantCmd)
	}
	if js.MemoryGB != 2 {
		t.Errorf("memory: %d != 2", js.MemoryGB)
	}

	// The local schema file is staged by content address, and the
	// false boolean option is dropped.
	wantArgs := map[string]string{
		"--converter": "python3 conv.py",
		"--joblist":   "atl11_jobs.txt",
		"--schema":    schemaSum + ".csv",
	}
	if len(js.Args) != len(wantArgs)*2 {
		t.Errorf("wrong number of arguments: %d != %d", len(js.Args)/2, len(wantArgs))
	}
	for i := 0; i < len(js.Args); i += 2 {
		key, val := js.Args[i], js.Args[i+1]
		if wantVal, ok := wantArgs[key]; ok {
			if val != wantVal {
				t.Errorf("invalid argument val for key %s: %s != %s", key, val, wantVal)
			}
		} else {
			t.Errorf("missing argument key '%s'", key)
		}
	}

	data, ok := js.FileData[schemaSum+".csv"]
	if !ok {
		t.Fatalf("missing staged file in %v", js.FileData)
	}
	if string(data) != "field,datatype\nh_corr,float32\n" {
		t.Errorf("staged file contents: have %q", string(data))
	}
}

func TestNewJobSpec_remoteInputs(t *testing.T) {
	// Inputs that already point at remote storage are passed through
	// without staging.
	root, config := testCmd()
	config.Set("schema", "gs://icepipe-data/schema.csv")

	js, err := NewJobSpec(root, config, icepipe.Version, "test_job", []string{"joblist"},
		[]string{"schema"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(js.FileData) != 0 {
		t.Errorf("no files should be staged: %v", js.FileData)
	}
	found := false
	for i := 0; i < len(js.Args); i += 2 {
		if js.Args[i] == "--schema" {
			found = true
			if js.Args[i+1] != "gs://icepipe-data/schema.csv" {
				t.Errorf("schema: have %s", js.Args[i+1])
			}
		}
	}
	if !found {
		t.Error("missing --schema argument")
	}
}

func TestJobOutputAddresses(t *testing.T) {
	root, config := testCmd()
	c, err := NewFakeClient(nil, nil, "gs://icepipe-data", root, config, nil, []string{"joblist"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := contextWithUser()
	addrs, err := c.jobOutputAddresses(ctx, "test_job", []string{"icepipe", "joblist"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"joblist": "gs://icepipe-data/test_user/test_job/joblist.txt",
	}
	if !reflect.DeepEqual(addrs, want) {
		t.Errorf("have %v, want %v", addrs, want)
	}
}

func TestSetOutputPaths(t *testing.T) {
	root, config := testCmd()
	c, err := NewFakeClient(nil, nil, "gs://icepipe-data", root, config, nil, []string{"joblist"})
	if err != nil {
		t.Fatal(err)
	}
	job := &JobSpec{
		Name: "test_job",
		Cmd:  []string{"icepipe", "joblist"},
		Args: []string{"--converter", "python3 conv.py", "--joblist", "atl11_jobs.txt"},
	}
	if err := c.setOutputPaths(contextWithUser(), job); err != nil {
		t.Fatal(err)
	}
	want := []string{"--converter", "python3 conv.py", "--joblist", "gs://icepipe-data/test_user/test_job/joblist.txt"}
	if !reflect.DeepEqual(job.Args, want) {
		t.Errorf("have %v, want %v", job.Args, want)
	}
}
