package tools

import (
	"flag"
	"os"
)

const (
	CommandClosest    = "closest"
	CommandKNearest   = "knn"
	CommandRadius     = "radius"
	CommandMerge      = "merge"
	CommandLinks      = "links"
	CommandCrossCheck = "crosscheck"
)

var Commands = []string{CommandClosest, CommandKNearest, CommandRadius, CommandMerge, CommandLinks, CommandCrossCheck}

type FlagsGlobal struct {
	Help    *bool `json:"help"`
	Version *bool `json:"version"`
}

type LocatorFlags struct {
	Algorithm       *string `json:"algorithm"`
	PointsPerBucket *int    `json:"points_per_bucket"`
	PointsPerRegion *int    `json:"points_per_region"`
	MaxLevel        *int    `json:"max_level"`
	MergeStrategy   *string `json:"merge_strategy"`
}

type FlagsForCommand struct {
	LocatorFlags
	Input       *string  `json:"input"`
	Points      *int     `json:"points"`
	Seed        *int     `json:"seed"`
	QueriesFile *string  `json:"queries_file"`
	NumQueries  *int     `json:"num_queries"`
	K           *int     `json:"k"`
	Radius      *float64 `json:"radius"`
	Tolerance   *float64 `json:"tolerance"`
	Grid        *int     `json:"grid"`
	StaticLinks *bool    `json:"static_links"`
	Workers     *int     `json:"workers"`
	Output      *string  `json:"output"`

	Silent       *bool `json:"silent"`
	LogTimestamp *bool `json:"timestamp"`
	Help         *bool `json:"help"`
	Version      *bool `json:"version"`
}

func ParseFlagsGlobal() FlagsGlobal {
	help := defineBoolFlag("help", "h", false, "Displays this help.")
	// -v belongs to glog on the global flag set
	version := defineBoolFlag("version", "", false, "Displays the version of mesh_locator.")

	flag.Parse()

	return FlagsGlobal{
		Help:    help,
		Version: version,
	}
}

// Parses the flags of a subcommand. Every subcommand accepts the same flags, each one reads the
// flags relevant to it.
func ParseFlagsForCommand(command string, args []string) (FlagsForCommand, error) {
	flagCommand, flags := defineFlagsForCommand(command)
	if err := flagCommand.Parse(args); err != nil {
		return FlagsForCommand{}, err
	}
	return flags, nil
}

// Prints the flags accepted by the subcommands to the standard output
func PrintDefaultsForCommand() {
	flagCommand, _ := defineFlagsForCommand("")
	flagCommand.SetOutput(os.Stdout)
	flagCommand.PrintDefaults()
}

func defineFlagsForCommand(command string) (*flag.FlagSet, FlagsForCommand) {
	flagCommand := flag.NewFlagSet("command-"+command, flag.ContinueOnError)

	algorithm := defineStringFlagCommand(flagCommand, "algorithm", "a", "BUCKET", "Point locator to use, BUCKET or OCTREE.")
	perBucket := defineIntFlagCommand(flagCommand, "points-per-bucket", "p", 5, "Target average number of points per bucket of the BUCKET locator.")
	perRegion := defineIntFlagCommand(flagCommand, "points-per-region", "", 100, "Maximum number of points per leaf region of the OCTREE locator.")
	maxLevel := defineIntFlagCommand(flagCommand, "max-level", "", 20, "Maximum depth of the OCTREE locator.")
	mergeStrategy := defineStringFlagCommand(flagCommand, "merge-strategy", "", "BIN_ORDER", "Representative selection of tolerance merges, POINT_ORDER or BIN_ORDER.")

	input := defineStringFlagCommand(flagCommand, "input", "i", "", "Input file: xyz or .ply points, or a v/c or .ply mesh for the links command. A random cloud is used when empty.")
	points := defineIntFlagCommand(flagCommand, "points", "n", 100000, "Number of points of the random cloud.")
	seed := defineIntFlagCommand(flagCommand, "seed", "", 1, "Seed of the random cloud and of the random queries.")
	queriesFile := defineStringFlagCommand(flagCommand, "queries", "q", "", "xyz or .ply file of query positions. Random positions are used when empty.")
	numQueries := defineIntFlagCommand(flagCommand, "num-queries", "m", 1000, "Number of random query positions.")
	k := defineIntFlagCommand(flagCommand, "k", "k", 8, "Number of neighbors of the knn command.")
	radius := defineFloat64FlagCommand(flagCommand, "radius", "r", 0.01, "Search radius of the radius command. When positive for the closest command, only points within it are reported.")
	tolerance := defineFloat64FlagCommand(flagCommand, "tolerance", "t", 0, "Merge tolerance of the merge command, 0 merges coincident points only.")
	grid := defineIntFlagCommand(flagCommand, "grid", "g", 50, "Points per side of the hexahedral grid used by the links command without input.")
	staticLinks := defineBoolFlagCommand(flagCommand, "static", "", true, "Builds static cell links in the links command, dynamic ones otherwise.")
	workers := defineIntFlagCommand(flagCommand, "workers", "w", 0, "Number of worker goroutines, 0 for one per CPU.")
	output := defineStringFlagCommand(flagCommand, "output", "o", "", "Writes the JSON report to this file instead of the standard output.")

	silent := defineBoolFlagCommand(flagCommand, "silent", "s", false, "Use to suppress all the non-error messages.")
	logTimestamp := defineBoolFlagCommand(flagCommand, "timestamp", "", false, "Adds timestamp to log messages.")
	help := defineBoolFlagCommand(flagCommand, "help", "h", false, "Displays this help.")
	version := defineBoolFlagCommand(flagCommand, "version", "v", false, "Displays the version of mesh_locator.")

	return flagCommand, FlagsForCommand{
		LocatorFlags: LocatorFlags{
			Algorithm:       algorithm,
			PointsPerBucket: perBucket,
			PointsPerRegion: perRegion,
			MaxLevel:        maxLevel,
			MergeStrategy:   mergeStrategy,
		},
		Input:        input,
		Points:       points,
		Seed:         seed,
		QueriesFile:  queriesFile,
		NumQueries:   numQueries,
		K:            k,
		Radius:       radius,
		Tolerance:    tolerance,
		Grid:         grid,
		StaticLinks:  staticLinks,
		Workers:      workers,
		Output:       output,
		Silent:       silent,
		LogTimestamp: logTimestamp,
		Help:         help,
		Version:      version,
	}
}

func defineBoolFlag(name string, shortHand string, defaultValue bool, usage string) *bool {
	var output bool
	flag.BoolVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flag.BoolVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}
	return &output
}

func defineStringFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue string, usage string) *string {
	var output string
	flagCommand.StringVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.StringVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}

	return &output
}

func defineIntFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue int, usage string) *int {
	var output int
	flagCommand.IntVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.IntVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}

	return &output
}

func defineFloat64FlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue float64, usage string) *float64 {
	var output float64
	flagCommand.Float64Var(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.Float64Var(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}
	return &output
}

func defineBoolFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue bool, usage string) *bool {
	var output bool
	flagCommand.BoolVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.BoolVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}
	return &output
}
