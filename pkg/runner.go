package pkg

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
	"github.com/ecopia-map/mesh_locator/internal/geometry"
	"github.com/ecopia-map/mesh_locator/internal/io"
	"github.com/ecopia-map/mesh_locator/internal/links"
	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/internal/parallel"
	"github.com/ecopia-map/mesh_locator/pkg/algorithm_manager"
	"github.com/ecopia-map/mesh_locator/tools"
)

// queries handed to a consumer at once
const queryBatchSize = 256

// Contains the options of a single run of the command line tool
type RunnerOptions struct {
	Command     string  // One of tools.Commands
	Input       string  // xyz or ply points, or a v/c or ply mesh for the links command. Random data when empty
	NumPoints   int     // Number of points of the random cloud
	Seed        int64   // Seed of the random cloud and of the random queries
	QueriesFile string  // xyz or ply query positions. Random positions when empty
	NumQueries  int     // Number of random query positions
	K           int     // Number of neighbors of knn queries
	Radius      float64 // Radius of radius queries, optional search radius of closest queries
	Tolerance   float64 // Merge tolerance
	GridSize    int     // Points per side of the hexahedral grid of the links command
	Workers     int     // Number of worker goroutines, 0 keeps the default
}

type LinksReport struct {
	NumberOfCells int     `json:"number_of_cells"`
	IDWidth       int     `json:"id_width,omitempty"`
	MinDegree     int     `json:"min_degree"`
	MaxDegree     int     `json:"max_degree"`
	MeanDegree    float64 `json:"mean_degree"`
	CornerCells   int     `json:"corner_cells"` // cells using a point that no other cell uses
}

// Outcome of a run, printed as JSON by the command line tool
type Report struct {
	Command                string           `json:"command"`
	NumberOfPoints         int              `json:"number_of_points"`
	MemoryKiB              int64            `json:"memory_kib"`
	BuildTime              string           `json:"build_time"`
	Results                []io.QueryResult `json:"results,omitempty"`
	MergeMap               []int            `json:"merge_map,omitempty"`
	NumberOfDistinctPoints int              `json:"number_of_distinct_points,omitempty"`
	Links                  *LinksReport     `json:"links,omitempty"`
	Disagreements          *int             `json:"disagreements,omitempty"`
}

type IRunner interface {
	Run(opts *RunnerOptions) (*Report, error)
}

type Runner struct {
	algorithmManager algorithm_manager.AlgorithmManager
}

func NewRunner(algorithmManager algorithm_manager.AlgorithmManager) IRunner {
	return &Runner{
		algorithmManager: algorithmManager,
	}
}

func (r *Runner) Run(opts *RunnerOptions) (*Report, error) {
	if opts.Workers > 0 {
		previous := parallel.SetWorkers(opts.Workers)
		defer parallel.SetWorkers(previous)
	}

	switch opts.Command {
	case tools.CommandClosest:
		return r.runQueries(opts, io.QueryOptions{Kind: io.QueryClosest, Radius: opts.Radius})
	case tools.CommandKNearest:
		return r.runQueries(opts, io.QueryOptions{Kind: io.QueryKNearest, N: opts.K})
	case tools.CommandRadius:
		return r.runQueries(opts, io.QueryOptions{Kind: io.QueryRadius, Radius: opts.Radius})
	case tools.CommandMerge:
		return r.runMerge(opts)
	case tools.CommandLinks:
		return r.runLinks(opts)
	case tools.CommandCrossCheck:
		return r.runCrossCheck(opts)
	}
	return nil, errors.Errorf("unknown command %q", opts.Command)
}

// Loads the points of the input file, or generates a cloud of random points in the unit cube
func loadPoints(opts *RunnerOptions) (*data.Mesh, error) {
	if opts.Input == "" {
		tools.LogOutput("> generating", opts.NumPoints, "random points")
		return data.NewMeshFromPoints(randomPoints(opts.Seed, opts.NumPoints, geometry.NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1}))), nil
	}

	tools.LogOutput("> reading points from", filepath.Base(opts.Input))
	points, err := tools.ReadPointsFile(opts.Input)
	if err != nil {
		return nil, err
	}
	mesh := data.NewMeshFromPoints(points)
	if err := data.Validate(mesh); err != nil {
		return nil, errors.Wrap(err, opts.Input)
	}
	return mesh, nil
}

// Loads the query positions of the queries file, or draws them in the bounds of the points
// grown by 10% on every side
func loadQueries(opts *RunnerOptions, ds data.PointSet) ([]io.QueryResult, error) {
	var positions []r3.Vector
	if opts.QueriesFile != "" {
		var err error
		if positions, err = tools.ReadPointsFile(opts.QueriesFile); err != nil {
			return nil, err
		}
	} else {
		box := geometry.NewBoundingBoxFromBounds(ds.Bounds())
		if !box.IsValid() {
			box = geometry.NewBoundingBoxFromBounds([6]float64{0, 1, 0, 1, 0, 1})
		}
		box.ScaleAboutCenter(1.2)
		positions = randomPoints(opts.Seed+1, opts.NumQueries, box)
	}

	results := make([]io.QueryResult, len(positions))
	for i, p := range positions {
		results[i].Query = p
	}
	return results, nil
}

func randomPoints(seed int64, n int, box geometry.BoundingBox) []r3.Vector {
	rnd := rand.New(rand.NewSource(seed))
	lengths := box.GetLengths()
	points := make([]r3.Vector, n)
	for i := range points {
		points[i] = r3.Vector{
			X: box.MinPoint[0] + rnd.Float64()*lengths[0],
			Y: box.MinPoint[1] + rnd.Float64()*lengths[1],
			Z: box.MinPoint[2] + rnd.Float64()*lengths[2],
		}
	}
	return points
}

func buildLocator(loc locator.IPointLocator, ds data.PointSet) (time.Duration, error) {
	tools.LogOutput("> building data structure...")
	start := time.Now()
	loc.SetDataSet(ds)
	if err := loc.BuildLocator(); err != nil {
		return 0, errors.Wrap(err, "building locator")
	}
	return time.Since(start), nil
}

// Answers the queries with a consumer goroutine per worker
func runQueryPipeline(loc locator.IPointLocator, results []io.QueryResult, queryOpts io.QueryOptions) error {
	numConsumers := parallel.Workers()
	consumers := make([]io.Consumer, numConsumers)
	for i := range consumers {
		consumers[i] = io.NewStandardConsumer(loc, results, queryOpts)
	}
	producer := io.NewStandardProducer(len(results), queryBatchSize)
	return io.RunPipeline(producer, consumers)
}

func (r *Runner) runQueries(opts *RunnerOptions, queryOpts io.QueryOptions) (*Report, error) {
	ds, err := loadPoints(opts)
	if err != nil {
		return nil, err
	}
	loc := r.algorithmManager.GetLocatorAlgorithm()
	buildTime, err := buildLocator(loc, ds)
	if err != nil {
		return nil, err
	}

	results, err := loadQueries(opts, ds)
	if err != nil {
		return nil, err
	}
	tools.LogOutput("> running", len(results), queryOpts.Kind, "queries...")
	if err := runQueryPipeline(loc, results, queryOpts); err != nil {
		return nil, errors.Wrap(err, "running queries")
	}

	return &Report{
		Command:        opts.Command,
		NumberOfPoints: ds.NumberOfPoints(),
		MemoryKiB:      loc.GetActualMemorySize(),
		BuildTime:      buildTime.String(),
		Results:        results,
	}, nil
}

func (r *Runner) runMerge(opts *RunnerOptions) (*Report, error) {
	ds, err := loadPoints(opts)
	if err != nil {
		return nil, err
	}
	loc := r.algorithmManager.GetStaticLocatorAlgorithm()
	buildTime, err := buildLocator(loc, ds)
	if err != nil {
		return nil, err
	}

	tools.LogOutput("> merging points with tolerance", opts.Tolerance)
	mergeMap := loc.MergePoints(opts.Tolerance)
	distinct := 0
	for id, rep := range mergeMap {
		if id == rep {
			distinct++
		}
	}

	return &Report{
		Command:                opts.Command,
		NumberOfPoints:         ds.NumberOfPoints(),
		MemoryKiB:              loc.GetActualMemorySize(),
		BuildTime:              buildTime.String(),
		MergeMap:               mergeMap,
		NumberOfDistinctPoints: distinct,
	}, nil
}

func (r *Runner) runLinks(opts *RunnerOptions) (*Report, error) {
	var mesh *data.Mesh
	if opts.Input == "" {
		n := max(opts.GridSize, 2)
		tools.LogOutput("> generating a hexahedral grid of", n, "points per side")
		mesh = data.NewHexahedronGrid(n, n, n, 1.0)
	} else {
		tools.LogOutput("> reading mesh from", filepath.Base(opts.Input))
		var err error
		if mesh, err = tools.ReadMeshOrPLYFile(opts.Input); err != nil {
			return nil, err
		}
	}

	cellLinks := r.algorithmManager.GetCellLinksAlgorithm()
	tools.LogOutput("> building cell links...")
	start := time.Now()
	cellLinks.SetDataSet(mesh)
	if err := cellLinks.BuildLinks(); err != nil {
		return nil, errors.Wrap(err, "building cell links")
	}
	buildTime := time.Since(start)

	report := &LinksReport{
		NumberOfCells: mesh.NumberOfCells(),
		MinDegree:     -1,
	}
	if static, ok := cellLinks.(*links.StaticCellLinks); ok {
		report.IDWidth = int(static.GetIDWidth())
	}
	total := 0
	for ptID := 0; ptID < cellLinks.GetNumberOfPoints(); ptID++ {
		degree := len(cellLinks.GetCells(ptID))
		total += degree
		report.MaxDegree = max(report.MaxDegree, degree)
		if report.MinDegree < 0 || degree < report.MinDegree {
			report.MinDegree = degree
		}
	}
	if numPts := cellLinks.GetNumberOfPoints(); numPts > 0 {
		report.MeanDegree = float64(total) / float64(numPts)
	}
	report.MinDegree = max(report.MinDegree, 0)

	selection := make([]uint8, mesh.NumberOfCells())
	if err := cellLinks.SelectCells([2]int{1, 2}, selection); err != nil {
		return nil, err
	}
	for _, selected := range selection {
		if selected != 0 {
			report.CornerCells++
		}
	}

	return &Report{
		Command:        opts.Command,
		NumberOfPoints: mesh.NumberOfPoints(),
		MemoryKiB:      cellLinks.GetActualMemorySize(),
		BuildTime:      buildTime.String(),
		Links:          report,
	}, nil
}

// Compares the closest points found by the bucket and the octree locators. Answers differing
// only by the id of equidistant points agree.
func (r *Runner) runCrossCheck(opts *RunnerOptions) (*Report, error) {
	ds, err := loadPoints(opts)
	if err != nil {
		return nil, err
	}
	buckets := r.algorithmManager.GetStaticLocatorAlgorithm()
	bucketTime, err := buildLocator(buckets, ds)
	if err != nil {
		return nil, err
	}
	octree := r.algorithmManager.GetOctreeLocatorAlgorithm()
	octreeTime, err := buildLocator(octree, ds)
	if err != nil {
		return nil, err
	}

	results, err := loadQueries(opts, ds)
	if err != nil {
		return nil, err
	}
	if err := runQueryPipeline(buckets, results, io.QueryOptions{Kind: io.QueryClosest}); err != nil {
		return nil, err
	}

	disagreements := 0
	for _, result := range results {
		id := octree.FindClosestPoint(result.Query)
		if len(result.IDs) == 0 || id < 0 {
			if len(result.IDs) != 0 || id >= 0 {
				disagreements++
			}
			continue
		}
		if id == result.IDs[0] {
			continue
		}
		d0 := result.Query.Sub(ds.Point(result.IDs[0])).Norm2()
		d1 := result.Query.Sub(ds.Point(id)).Norm2()
		if d0 != d1 {
			glog.Warningf("locators disagree at %v: bucket %d (%g), octree %d (%g)", result.Query, result.IDs[0], d0, id, d1)
			disagreements++
		}
	}

	report := &Report{
		Command:        opts.Command,
		NumberOfPoints: ds.NumberOfPoints(),
		MemoryKiB:      buckets.GetActualMemorySize() + octree.GetActualMemorySize(),
		BuildTime:      (bucketTime + octreeTime).String(),
		Results:        results,
		Disagreements:  &disagreements,
	}
	if disagreements > 0 {
		return report, errors.Errorf("%d of %d queries disagree", disagreements, len(results))
	}
	return report, nil
}

// Writes the report as indented JSON, creating the parent folder if needed
func WriteReport(report *Report, filePath string) error {
	if err := tools.CreateDirectoryIfDoesNotExist(filepath.Dir(filePath)); err != nil {
		return err
	}
	content, err := json.MarshalIndent(report, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, content, 0666)
}
