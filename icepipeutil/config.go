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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/spatialmodel/icepipe"
)

// marshalStringMap encodes a string map as JSON for use as a flag
// default value.
func marshalStringMap(m map[string]string) string {
	b := bytes.NewBuffer(nil)
	e := json.NewEncoder(b)
	if err := e.Encode(m); err != nil {
		panic(err)
	}
	return strings.TrimSpace(b.String())
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// consolidateConfig unmarshals the viper configuration for grouping
// ATL11 granules into per-track sets.
func consolidateConfig() (*icepipe.ConsolidateConfig, error) {
	c := &icepipe.ConsolidateConfig{
		Segments:   expandStringSlice(Cfg.GetStringSlice("segments")),
		Exceptions: make(map[string][]string),
	}
	for track, segs := range GetStringMapString("segment_exceptions", Cfg) {
		var list []string
		for _, s := range strings.Split(segs, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			list = append(list, s)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("icepipe: segment_exceptions entry for track %s is empty", track)
		}
		c.Exceptions[track] = list
	}
	return c, nil
}
