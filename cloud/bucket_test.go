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
	"os"
	"testing"
)

func TestAWSRegion(t *testing.T) {
	old, had := os.LookupEnv("AWS_REGION")
	defer func() {
		if had {
			os.Setenv("AWS_REGION", old)
		} else {
			os.Unsetenv("AWS_REGION")
		}
	}()

	os.Unsetenv("AWS_REGION")
	if r := awsRegion(); r != "us-east-2" {
		t.Errorf("unset: have %s, want us-east-2", r)
	}
	os.Setenv("AWS_REGION", "eu-north-1")
	if r := awsRegion(); r != "eu-north-1" {
		t.Errorf("set: have %s, want eu-north-1", r)
	}
}

func TestOpenBucket_invalidProvider(t *testing.T) {
	if _, err := OpenBucket(context.Background(), "ftp://somewhere"); err == nil {
		t.Error("expected an error for an unknown storage provider")
	}
}
