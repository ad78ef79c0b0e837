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

// Package icepipeutil wires the icepipe processing operations into a
// command-line interface with file- and environment-based configuration.
package icepipeutil

import (
	"context"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/icepipe"
	"github.com/spatialmodel/icepipe/cloud"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
	isInputFile            bool
	isOutputFile           bool
}

func init() {
	// Options are the configuration options available to icepipe.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
		isInputFile            bool
		isOutputFile           bool
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "atl06_dir",
			usage: `
              atl06_dir is the root of the directory tree holding the
              input ATL06 land-ice height granules. It can contain
              environment variables.`,
			defaultVal: "ATL06.003",
			flagsets:   []*pflag.FlagSet{discoverCmd.Flags(), joblistCmd.Flags()},
		},
		{
			name: "atl11_dir",
			usage: `
              atl11_dir is the directory where ATL11 granules are or
              should be written. It can contain environment variables.`,
			defaultVal: "ATL11",
			flagsets:   []*pflag.FlagSet{joblistCmd.Flags(), consolidateCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "joblist",
			usage: `
              joblist is the path of the joblist file, holding one
              converter command line per row.`,
			defaultVal:   "atl11_jobs.txt",
			flagsets:     []*pflag.FlagSet{joblistCmd.Flags(), runCmd.Flags()},
			isOutputFile: true,
		},
		{
			name: "converter",
			usage: `
              converter is the command that runs the external
              ATL06-to-ATL11 converter for one reference ground track.`,
			defaultVal: "python3 ATL11/ATL06_to_ATL11.py",
			flagsets:   []*pflag.FlagSet{joblistCmd.Flags()},
		},
		{
			name: "release",
			usage: `
              release is the ATL11 release number passed to the
              converter.`,
			defaultVal: "003",
			flagsets:   []*pflag.FlagSet{joblistCmd.Flags()},
		},
		{
			name: "segments",
			usage: `
              segments lists the orbital segments every reference ground
              track is expected to produce a granule for.`,
			defaultVal: icepipe.DefaultSegments,
			flagsets:   []*pflag.FlagSet{consolidateCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "segment_exceptions",
			usage: `
              segment_exceptions maps reference ground tracks to the
              comma-separated orbital segments they are expected to
              have, for tracks whose coverage legitimately misses a
              segment.`,
			defaultVal: map[string]string{"1102": "10,12"},
			flagsets:   []*pflag.FlagSet{consolidateCmd.Flags(), convertCmd.Flags()},
		},
		{
			name: "workers",
			usage: `
              workers is the number of joblist commands run
              concurrently. If it is less than 1, the number of
              available processors is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "bucket",
			usage: `
              bucket is the blob storage location for Zarr output, in
              the format provider://name where provider is file, gs, or
              s3.`,
			defaultVal: "file://icepipe-data",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), dhdtCmd.Flags(), cloudStartCmd.PersistentFlags()},
		},
		{
			name: "store_prefix",
			usage: `
              store_prefix is the key prefix within the bucket under
              which the per-track Zarr stores are written.`,
			defaultVal: "icesat2_icesheets",
			flagsets:   []*pflag.FlagSet{convertCmd.Flags(), dhdtCmd.Flags()},
		},
		{
			name: "schema",
			usage: `
              schema is the path of the data-dictionary CSV table giving
              per-field output datatypes and descriptions. It can be a
              local path or an http://, gs://, s3://, or file:// URL.`,
			defaultVal:  "",
			flagsets:    []*pflag.FlagSet{convertCmd.Flags()},
			isInputFile: true,
		},
		{
			name: "chunk",
			usage: `
              chunk is the Zarr chunk length along the reference-point
              dimension.`,
			defaultVal: icepipe.DefaultChunk,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "region",
			usage: `
              region restricts the elevation-change computation to a
              named Antarctic region (e.g. kamb, siple_coast,
              whillans). Empty means the whole continent.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{dhdtCmd.Flags()},
		},
		{
			name: "min_cycles",
			usage: `
              min_cycles is the minimum number of valid height
              measurements a reference point needs for a trend fit.`,
			defaultVal: icepipe.DefaultMinCycles,
			flagsets:   []*pflag.FlagSet{dhdtCmd.Flags()},
		},
		{
			name: "min_height_range",
			usage: `
              min_height_range is the minimum range in metres between a
              reference point's highest and lowest measured heights for
              the point to be kept.`,
			defaultVal: icepipe.DefaultMinHeightRange,
			flagsets:   []*pflag.FlagSet{dhdtCmd.Flags()},
		},
		{
			name: "dhdt_out",
			usage: `
              dhdt_out is the key prefix within the bucket where the
              elevation-change store is written.`,
			defaultVal: "ds_dhdt.zarr",
			flagsets:   []*pflag.FlagSet{dhdtCmd.Flags()},
		},
		{
			name: "job_name",
			usage: `
              job_name is a user-specified name for a distributed
              processing job.`,
			defaultVal: "test_job",
			flagsets:   []*pflag.FlagSet{cloudCmd.PersistentFlags()},
		},
		{
			name: "cmds",
			usage: `
              cmds lists the icepipe subcommands a distributed job
              should run.`,
			defaultVal: []string{"convert"},
			flagsets:   []*pflag.FlagSet{cloudStartCmd.Flags()},
		},
		{
			name: "memory_gb",
			usage: `
              memory_gb is the gigabytes of RAM a distributed job
              requires.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{cloudStartCmd.Flags()},
		},
		{
			name: "image",
			usage: `
              image is the container image distributed jobs run with.`,
			defaultVal: "icepipe/icepipe:latest",
			flagsets:   []*pflag.FlagSet{cloudStartCmd.Flags()},
		},
		{
			name: "kubeconfig",
			usage: `
              kubeconfig is the path of the Kubernetes configuration
              file used to connect to the cluster that distributed jobs
              run on. Empty means in-cluster configuration.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cloudCmd.PersistentFlags()},
		},
		{
			name: "version",
			usage: `
              version is the icepipe container version distributed jobs
              run with, such as "latest".`,
			defaultVal: icepipe.Version,
			flagsets:   []*pflag.FlagSet{cloudStartCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ICEPIPE")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				s := marshalStringMap(option.defaultVal.(map[string]string))
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(discoverCmd)
	Root.AddCommand(joblistCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(consolidateCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(dhdtCmd)
	Root.AddCommand(cloudCmd)
	cloudCmd.AddCommand(cloudStartCmd)
	cloudCmd.AddCommand(cloudStatusCmd)
	cloudCmd.AddCommand(cloudOutputCmd)
	cloudCmd.AddCommand(cloudDeleteCmd)
}

// InputFileArgs and OutputFileArgs list the configuration arguments
// that represent input and output files of distributed jobs.
func InputFileArgs() []string {
	var o []string
	for _, option := range options {
		if option.isInputFile {
			o = append(o, option.name)
		}
	}
	return o
}

func OutputFileArgs() []string {
	var o []string
	for _, option := range options {
		if option.isOutputFile {
			o = append(o, option.name)
		}
	}
	return o
}

// outChan returns a channel printing to standard output.
func outChan() chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			fmt.Printf(msg)
		}
	}()
	return outChan
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("icepipe: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "icepipe",
	Short: "An ICESat-2 land-ice processing pipeline.",
	Long: `icepipe organizes the batch conversion of ICESat-2 ATL06 land-ice
height granules into ATL11 annual land-ice height time series, repackages
the results as cloud-optimized Zarr stores, and computes per-reference-point
rates of ice-sheet elevation change.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'ICEPIPE_var' where 'var' is the name of the variable to be set. Many
configuration variables are additionally allowed to contain environment
variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of icepipe.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("icepipe v%s\n", icepipe.Version)
	},
	DisableAutoGenTag: true,
}

// discoverCmd scans the ATL06 directory tree and prints the work units.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the available conversion work units.",
	Long: `discover scans the ATL06 directory tree and lists one work unit per
(reference ground track, orbital segment) combination, together with the
range of cycles available for it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		units, err := icepipe.DiscoverWorkUnits(os.ExpandEnv(Cfg.GetString("atl06_dir")))
		if err != nil {
			return err
		}
		for _, u := range units {
			cmd.Printf("track %s segment %s cycles %s-%s\n",
				u.ReferenceGroundTrack, u.OrbitalSegment, u.FirstCycle(), u.LastCycle())
		}
		cmd.Printf("%d work units\n", len(units))
		return nil
	},
	DisableAutoGenTag: true,
}

// joblistCmd writes the converter command lines to the joblist file.
var joblistCmd = &cobra.Command{
	Use:   "joblist",
	Short: "Generate the ATL06-to-ATL11 conversion joblist.",
	Long: `joblist scans the ATL06 directory tree and writes one external
converter command line per work unit to the joblist file, suitable for
consumption by a generic parallel job runner or by 'icepipe run'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		units, err := icepipe.DiscoverWorkUnits(os.ExpandEnv(Cfg.GetString("atl06_dir")))
		if err != nil {
			return err
		}
		w, err := os.Create(os.ExpandEnv(Cfg.GetString("joblist")))
		if err != nil {
			return fmt.Errorf("icepipe: creating joblist file: %v", err)
		}
		defer w.Close()
		n, err := icepipe.WriteJoblist(w, units, &icepipe.JoblistConfig{
			Converter: Cfg.GetString("converter"),
			Release:   Cfg.GetString("release"),
			InputDir:  os.ExpandEnv(Cfg.GetString("atl06_dir")),
			OutputDir: os.ExpandEnv(Cfg.GetString("atl11_dir")),
		})
		if err != nil {
			return err
		}
		cmd.Printf("wrote %d jobs to %s\n", n, Cfg.GetString("joblist"))
		return nil
	},
	DisableAutoGenTag: true,
}

// runCmd executes the joblist locally.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conversion joblist locally.",
	Long: `run executes the command lines in the joblist file with bounded
parallelism on the local machine, stopping at the first failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()
		cmds, err := icepipe.ReadJoblistFile(os.ExpandEnv(Cfg.GetString("joblist")))
		if err != nil {
			return err
		}
		return icepipe.RunJoblist(context.Background(), cmds, &icepipe.RunConfig{
			Workers: Cfg.GetInt("workers"),
		}, outChan)
	},
	DisableAutoGenTag: true,
}

// consolidateCmd groups ATL11 granules into per-track directories.
var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Group ATL11 granules by reference ground track.",
	Long: `consolidate verifies that each reference ground track has exactly
the expected per-orbital-segment ATL11 granules and moves them into a
per-track subdirectory of the ATL11 directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := os.ExpandEnv(Cfg.GetString("atl11_dir"))
		cfg, err := consolidateConfig()
		if err != nil {
			return err
		}
		sets, err := icepipe.GroupTracks(dir, cfg)
		if err != nil {
			return err
		}
		sets, err = icepipe.Consolidate(dir, sets)
		if err != nil {
			return err
		}
		cmd.Printf("consolidated %d reference ground tracks\n", len(sets))
		return nil
	},
	DisableAutoGenTag: true,
}

// convertCmd repackages consolidated ATL11 granules as Zarr stores.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert ATL11 granules to per-track Zarr stores.",
	Long: `convert concatenates the per-orbital-segment ATL11 granules of each
reference ground track along the reference-point dimension and writes one
consolidated Zarr store per track to blob storage, re-encoding each field
according to the data-dictionary schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()
		ctx := context.Background()

		cfg, err := consolidateConfig()
		if err != nil {
			return err
		}
		sets, err := icepipe.GroupTracks(os.ExpandEnv(Cfg.GetString("atl11_dir")), cfg)
		if err != nil {
			return err
		}

		ccfg := &icepipe.ConvertConfig{Chunk: Cfg.GetInt("chunk")}
		if schemaPath := Cfg.GetString("schema"); schemaPath != "" {
			ccfg.Schema, err = icepipe.ReadSchemaFile(maybeDownload(ctx, os.ExpandEnv(schemaPath), outChan))
			if err != nil {
				return err
			}
		}

		bucket, err := cloud.OpenBucket(ctx, Cfg.GetString("bucket"))
		if err != nil {
			return err
		}
		return icepipe.ConvertTracks(ctx, sets, bucket, Cfg.GetString("store_prefix"), ccfg, outChan)
	},
	DisableAutoGenTag: true,
}

// dhdtCmd computes per-reference-point elevation-change trends.
var dhdtCmd = &cobra.Command{
	Use:   "dhdt",
	Short: "Compute rates of height change over time.",
	Long: `dhdt fits a least-squares height trend across cycles for every
reference point in the per-track Zarr stores, filters out points with too
few valid measurements or too little height variation, and writes the
resulting slopes and fit statistics to a flat Zarr store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()
		ctx := context.Background()

		bucket, err := cloud.OpenBucket(ctx, Cfg.GetString("bucket"))
		if err != nil {
			return err
		}
		n, err := icepipe.ComputeDhdt(ctx, bucket,
			Cfg.GetString("store_prefix"), Cfg.GetString("dhdt_out"),
			&icepipe.DhdtConfig{
				Region:         Cfg.GetString("region"),
				MinCycles:      Cfg.GetInt("min_cycles"),
				MinHeightRange: Cfg.GetFloat64("min_height_range"),
			}, outChan)
		if err != nil {
			return err
		}
		cmd.Printf("wrote %d reference points to %s\n", n, Cfg.GetString("dhdt_out"))
		return nil
	},
	DisableAutoGenTag: true,
}

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Interact with a distributed processing cluster.",
	Long: `cloud manages icepipe processing jobs running as Kubernetes batch
jobs, with input and output files staged in blob storage.`,
	DisableAutoGenTag: true,
}

var cloudStartCmd = &cobra.Command{
	Use:               "start",
	Short:             "Start a distributed processing job.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := NewCloudClient()
		if err != nil {
			return err
		}
		return CloudJobStart(cloudContext(), client)
	},
}

var cloudStatusCmd = &cobra.Command{
	Use:               "status",
	Short:             "Check the status of a distributed processing job.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := NewCloudClient()
		if err != nil {
			return err
		}
		status, err := CloudJobStatus(cloudContext(), client)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", status.Status, status.Message)
		return nil
	},
}

var cloudOutputCmd = &cobra.Command{
	Use:               "output",
	Short:             "Retrieve the output of a distributed processing job.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := NewCloudClient()
		if err != nil {
			return err
		}
		return CloudJobOutput(cloudContext(), client)
	},
}

var cloudDeleteCmd = &cobra.Command{
	Use:               "delete",
	Short:             "Delete a distributed processing job.",
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := NewCloudClient()
		if err != nil {
			return err
		}
		return CloudJobDelete(cloudContext(), Cfg.GetString("job_name"), client)
	},
}
