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
	"reflect"
	"testing"

	"github.com/lnashier/viper"
)

func TestMarshalStringMap(t *testing.T) {
	s := marshalStringMap(map[string]string{"1102": "10,12"})
	if s != `{"1102":"10,12"}` {
		t.Errorf("have %s", s)
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()

	// A JSON string, as set from a command-line argument.
	cfg.Set("exceptions", `{"1102":"10,12"}`)
	want := map[string]string{"1102": "10,12"}
	if m := GetStringMapString("exceptions", cfg); !reflect.DeepEqual(m, want) {
		t.Errorf("have %v, want %v", m, want)
	}

	// A map, as set from a configuration file.
	cfg.Set("exceptions2", map[string]interface{}{"1102": "10,12"})
	if m := GetStringMapString("exceptions2", cfg); !reflect.DeepEqual(m, want) {
		t.Errorf("have %v, want %v", m, want)
	}
}

func TestConsolidateConfig(t *testing.T) {
	defer Cfg.Set("segments", Cfg.Get("segments"))
	defer Cfg.Set("segment_exceptions", Cfg.Get("segment_exceptions"))

	Cfg.Set("segments", []string{"10", "11", "12"})
	Cfg.Set("segment_exceptions", `{"1102":"10, 12"}`)

	c, err := consolidateConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Segments, []string{"10", "11", "12"}) {
		t.Errorf("segments: have %v", c.Segments)
	}
	want := map[string][]string{"1102": {"10", "12"}}
	if !reflect.DeepEqual(c.Exceptions, want) {
		t.Errorf("exceptions: have %v, want %v", c.Exceptions, want)
	}
}

func TestConsolidateConfig_emptyException(t *testing.T) {
	defer Cfg.Set("segment_exceptions", Cfg.Get("segment_exceptions"))
	Cfg.Set("segment_exceptions", `{"1102":", ,"}`)
	if _, err := consolidateConfig(); err == nil {
		t.Error("expected an error for an empty exception entry")
	}
}
