/*
Copyright © 2021 the EOCalc authors.
This file is part of EOCalc.

EOCalc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EOCalc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EOCalc.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package eocalcutil holds the command line interface of EOCalc.
package eocalcutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/eocalc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to EOCalc.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print: one of
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file log messages are written to in
              addition to standard error. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MetricsFile",
			usage: `
              MetricsFile is the path to a file the Prometheus metrics of the
              command are written to when it finishes, in the text exposition
              format. Leave it blank to skip writing metrics.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Region",
			usage: `
              Region is the path to a GeoJSON or shapefile holding the region to
              estimate emissions for, in WGS84 longitude and latitude. It can be
              a local file, an http(s) URL or a blob URL (file://, gs:// or s3://)
              and can include environment variables.`,
			shorthand:  "r",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Start",
			usage: `
              Start is the first day of the period, in the format YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "End",
			usage: `
              End is the last day of the period, in the format YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "Pollutant",
			usage: `
              Pollutant is the pollutant to estimate emissions of: NO2, SO2,
              NH3 or PM2.5.`,
			shorthand:  "p",
			defaultVal: "NO2",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags()},
		},
		{
			name: "Method",
			usage: `
              Method is the emission estimation method: temis, fluky or dummy.`,
			shorthand:  "m",
			defaultVal: "temis",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags()},
		},
		{
			name: "TEMIS.DataDir",
			usage: `
              TEMIS.DataDir is the directory TEMIS data is stored in after
              it has been downloaded. It can include environment variables.`,
			defaultVal: "data/methods/temis/tropomi/no2/monthly_mean",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "TEMIS.URL",
			usage: `
              TEMIS.URL is the location TEMIS data is downloaded from. It can be
              an http(s) URL, a blob URL or a local directory with the same layout.`,
			defaultVal: "https://d1qb6yzwaaq4he.cloudfront.net/tropomi/no2",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "TEMIS.Retries",
			usage: `
              TEMIS.Retries is the number of times a failed download is retried.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), fetchCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path the emissions by sector are written to.
              The format follows the extension: .csv or .xlsx. It can be a
              blob URL and can include environment variables.`,
			shorthand:  "o",
			defaultVal: "eocalc_totals.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags()},
		},
		{
			name: "GridOutputFile",
			usage: `
              GridOutputFile is the path the gridded emissions are written to.
              The format follows the extension: .shp, .geojson or .csv. It can
              be a blob URL and can include environment variables. Leave it blank
              to skip writing gridded emissions.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), batchCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "BatchFile",
			usage: `
              BatchFile is the path to a TOML file listing the regions to
              process, as [[Region]] tables with Name and File keys and optional
              Start and End keys.`,
			defaultVal: "regions.toml",
			flagsets:   []*pflag.FlagSet{batchCmd.Flags()},
		},
		{
			name: "GridResolution",
			usage: `
              GridResolution is the width and height of grid cells [degrees].`,
			defaultVal: 0.125,
			flagsets:   []*pflag.FlagSet{gridCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	Cfg = viper.New()
	Cfg.SetEnvPrefix("EOCALC")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, option := range options {
		if option.name != "config" {
			Cfg.BindEnv(option.name)
		}
		for _, set := range option.flagsets {
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
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
	Root.AddCommand(runCmd)
	Root.AddCommand(batchCmd)
	Root.AddCommand(gridCmd)
	Root.AddCommand(fetchCmd)
}

// logFile is the open LogFile, if any.
var logFile *os.File

// setConfig finds and reads in the configuration file, if there is one,
// binds the flags of cmd and sets up logging.
func setConfig(cmd *cobra.Command) error {
	// Options shared by several commands are bound to the flags of
	// the command that is running.
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		Cfg.BindPFlag(f.Name, f)
	})
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("eocalcutil: problem reading configuration file: %w", err)
		}
	}

	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("eocalcutil: invalid LogLevel: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	var w io.Writer = os.Stderr
	if path := os.ExpandEnv(Cfg.GetString("LogFile")); path != "" {
		logFile, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("eocalcutil: problem creating log file: %w", err)
		}
		w = io.MultiWriter(w, logFile)
	}
	logrus.SetOutput(w)
	return nil
}

// finish writes the metrics file, if requested, and closes the log file.
func finish() error {
	if logFile != nil {
		logrus.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
	if path := os.ExpandEnv(Cfg.GetString("MetricsFile")); path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("eocalcutil: writing metrics: %w", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "eocalc",
	Short: "Emission estimates from earth observation data.",
	Long: `EOCalc estimates air pollutant emissions for a region and a period of
time from satellite observations of atmospheric column densities.
Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'EOCALC_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag:  true,
	SilenceUsage:       true,
	PersistentPreRunE:  func(cmd *cobra.Command, _ []string) error { return setConfig(cmd) },
	PersistentPostRunE: func(*cobra.Command, []string) error { return finish() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of EOCalc.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("EOCalc v%s\n", eocalc.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Estimate emissions for a region.",
	Long: `run estimates the emissions of a pollutant in the region during the
period from Start to End using the selected method, and writes the
emissions by sector to OutputFile and the gridded emissions to GridOutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		calc, err := NewCalculator(Cfg)
		if err != nil {
			return err
		}
		region, err := LoadRegion(ctx, os.ExpandEnv(Cfg.GetString("Region")))
		if err != nil {
			return err
		}
		period, err := eocalc.NewDateRange(Cfg.GetString("Start"), Cfg.GetString("End"))
		if err != nil {
			return err
		}
		pollutant, err := eocalc.ParsePollutant(Cfg.GetString("Pollutant"))
		if err != nil {
			return err
		}
		_, err = Run(ctx, calc, region, period, pollutant,
			os.ExpandEnv(Cfg.GetString("OutputFile")),
			os.ExpandEnv(Cfg.GetString("GridOutputFile")))
		return err
	},
	DisableAutoGenTag: true,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Estimate emissions for a list of regions.",
	Long: `batch estimates emissions for each region listed in BatchFile. The
outputs of each region are written next to OutputFile and GridOutputFile,
with the region name added to the file names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		calc, err := NewCalculator(Cfg)
		if err != nil {
			return err
		}
		b, err := ReadBatch(os.ExpandEnv(Cfg.GetString("BatchFile")))
		if err != nil {
			return err
		}
		pollutant, err := eocalc.ParsePollutant(Cfg.GetString("Pollutant"))
		if err != nil {
			return err
		}
		return b.Run(ctx, calc, Cfg.GetString("Start"), Cfg.GetString("End"), pollutant,
			os.ExpandEnv(Cfg.GetString("OutputFile")),
			os.ExpandEnv(Cfg.GetString("GridOutputFile")))
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Write the grid covering a region",
	Long: `grid creates the grid of GridResolution degree cells, aligned with
multiples of the resolution, that covers the region, clips it to the region
and writes it to GridOutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		region, err := LoadRegion(ctx, os.ExpandEnv(Cfg.GetString("Region")))
		if err != nil {
			return err
		}
		return Grid(ctx, region, Cfg.GetFloat64("GridResolution"),
			os.ExpandEnv(Cfg.GetString("GridOutputFile")))
	},
	DisableAutoGenTag: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download TEMIS data",
	Long: `fetch makes the TEMIS monthly means for the months from Start to End
available in TEMIS.DataDir, downloading them if needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		period, err := eocalc.NewDateRange(Cfg.GetString("Start"), Cfg.GetString("End"))
		if err != nil {
			return err
		}
		p, err := providerFromConfig(Cfg)
		if err != nil {
			return err
		}
		_, err = Fetch(context.Background(), p, period)
		return err
	},
	DisableAutoGenTag: true,
}
