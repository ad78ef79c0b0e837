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

package icepipeutil

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
)

func TestIsBlob(t *testing.T) {
	cases := map[string]bool{
		"gs://bucket/key":     true,
		"s3://bucket/key":     true,
		"file://bucket/key":   true,
		"http://host/key":     false,
		"/local/path/key.csv": false,
	}
	for path, want := range cases {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: have %v, want %v", path, have, want)
		}
	}
}

func TestMaybeDownload_local(t *testing.T) {
	f, err := ioutil.TempFile("", "icepipe")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.Close()

	c := make(chan string, 10)
	if p := maybeDownload(context.Background(), f.Name(), c); p != f.Name() {
		t.Errorf("have %s, want %s", p, f.Name())
	}

	// A path that exists nowhere comes back unchanged.
	if p := maybeDownload(context.Background(), "no/such/file.csv", c); p != "no/such/file.csv" {
		t.Errorf("have %s", p)
	}
}
