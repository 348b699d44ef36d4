/*
 * This file is derived from the Go Cesium Point Cloud Tiler distribution (https://github.com/mfbonfigli/gocesiumtiler).
 * Copyright (c) 2019 Massimo Federico Bonfigli - m.federico.bonfigli@gmail.com
 * Modifications are distributed under the same license.
 *
 * This program is free software; you can redistribute it and/or modify it
 * under the terms of the GNU Lesser General Public License Version 3 as
 * published by the Free Software Foundation;
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
 * Lesser General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 *
 * This software also uses third party components. You can find information
 * on their credits and licensing in the file LICENSE-3RD-PARTIES.md that
 * you should have received togheter with the source code.
 */

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/pkg"
	"github.com/ecopia-map/mesh_locator/pkg/algorithm_manager/std_algorithm_manager"
	"github.com/ecopia-map/mesh_locator/tools"
)

const VERSION = "1.0.0"

const logo = `
 mesh_locator
 Point locators and cell links for large meshes
`

func main() {
	// progress lines go to the console unless redirected with the glog flags
	_ = flag.Set("logtostderr", "true")

	flagsGlobal := tools.ParseFlagsGlobal()
	defer glog.Flush()

	if *flagsGlobal.Help {
		showHelp()
		return
	}
	if *flagsGlobal.Version {
		printVersion()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		glog.Exitf("Please specify a subcommand [%s].", strings.Join(tools.Commands, "|"))
	}
	cmd, args := args[0], args[1:]

	known := false
	for _, command := range tools.Commands {
		known = known || command == cmd
	}
	if !known {
		glog.Exitf("Unrecognized command [%q]. Command must be one of [%s]", cmd, strings.Join(tools.Commands, "|"))
	}

	mainCommand(cmd, args)
}

func mainCommand(cmd string, args []string) {
	flags, err := tools.ParseFlagsForCommand(cmd, args)
	if err != nil {
		glog.Exitf("Error parsing input parameters: %v", err)
	}

	if *flags.Help {
		showHelp()
		return
	}
	if *flags.Version {
		printVersion()
		return
	}

	// set logging and timestamp logging
	if *flags.Silent {
		tools.DisableLogger()
	} else {
		printLogo()
	}
	if !*flags.LogTimestamp {
		tools.DisableLoggerTimestamp()
	}
	glog.V(1).Infof("flags %s", tools.FmtJSONString(flags))

	locatorOpts, err := locatorOptionsFromFlags(&flags)
	if err != nil {
		glog.Exitf("Error parsing input parameters: %v", err)
	}

	opts := pkg.RunnerOptions{
		Command:     cmd,
		Input:       *flags.Input,
		NumPoints:   *flags.Points,
		Seed:        int64(*flags.Seed),
		QueriesFile: *flags.QueriesFile,
		NumQueries:  *flags.NumQueries,
		K:           *flags.K,
		Radius:      *flags.Radius,
		Tolerance:   *flags.Tolerance,
		GridSize:    *flags.Grid,
		Workers:     *flags.Workers,
	}

	// Validate RunnerOptions
	if msg, res := validateOptionsForCommand(&opts); !res {
		glog.Exitf("Error parsing input parameters: %s", msg)
	}

	defer timeTrack(time.Now(), cmd)
	runner := pkg.NewRunner(std_algorithm_manager.NewAlgorithmManager(locatorOpts, *flags.StaticLinks))
	report, runErr := runner.Run(&opts)
	if report != nil {
		if err := outputReport(report, *flags.Output); err != nil {
			glog.Exitf("Error while writing the report: %v", err)
		}
	}
	if runErr != nil {
		glog.Exitf("Error while running %s: %v", cmd, runErr)
	}
	tools.LogOutput("Completed")
}

func locatorOptionsFromFlags(flags *tools.FlagsForCommand) (*locator.LocatorOptions, error) {
	algorithm, err := locator.ParseAlgorithm(*flags.Algorithm)
	if err != nil {
		return nil, err
	}
	strategy, err := locator.ParseMergeStrategy(*flags.MergeStrategy)
	if err != nil {
		return nil, err
	}

	opts := locator.DefaultLocatorOptions()
	opts.Algorithm = algorithm
	opts.MergeStrategy = strategy
	opts.NumberOfPointsPerBucket = *flags.PointsPerBucket
	opts.MaximumPointsPerRegion = *flags.PointsPerRegion
	opts.MaxLevel = *flags.MaxLevel
	return opts, nil
}

// Validates the options checking that input files exist and that the numeric parameters make sense
func validateOptionsForCommand(opts *pkg.RunnerOptions) (string, bool) {
	if opts.Input != "" {
		if _, err := os.Stat(opts.Input); os.IsNotExist(err) {
			return "Input file not found", false
		}
	} else if opts.NumPoints < 0 {
		return "points cannot be negative", false
	}
	if opts.QueriesFile != "" {
		if _, err := os.Stat(opts.QueriesFile); os.IsNotExist(err) {
			return "Queries file not found", false
		}
	}
	if opts.NumQueries < 0 {
		return "num-queries cannot be negative", false
	}
	if opts.Command == tools.CommandKNearest && opts.K <= 0 {
		return "k must be positive", false
	}
	if opts.Command == tools.CommandRadius && opts.Radius < 0 {
		return "radius cannot be negative", false
	}
	if opts.Tolerance < 0 {
		return "tolerance cannot be negative", false
	}
	return "", true
}

func outputReport(report *pkg.Report, output string) error {
	if output == "" {
		fmt.Println(tools.FmtJSONString(report))
		return nil
	}
	tools.LogOutput("> writing report to", output)
	return pkg.WriteReport(report, output)
}

func timeTrack(start time.Time, name string) {
	elapsed := time.Since(start)
	tools.LogOutput(fmt.Sprintf("%s took %s", name, elapsed))
}

func printLogo() {
	fmt.Fprintln(os.Stderr, logo)
}

func showHelp() {
	printLogo()
	fmt.Println("***")
	fmt.Println("mesh_locator builds point locators and cell links over point clouds and meshes and runs queries against them")
	printVersion()
	fmt.Println("***")
	fmt.Println("")
	fmt.Println("Subcommands: " + strings.Join(tools.Commands, ", "))
	fmt.Println("Command line flags: ")
	flag.CommandLine.SetOutput(os.Stdout)
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Println("Subcommand flags: ")
	tools.PrintDefaultsForCommand()
}

func printVersion() {
	fmt.Println("v." + VERSION)
}
