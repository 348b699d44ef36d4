package pkg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecopia-map/mesh_locator/internal/locator"
	"github.com/ecopia-map/mesh_locator/pkg/algorithm_manager/std_algorithm_manager"
	"github.com/ecopia-map/mesh_locator/tools"
)

func newRunner(algorithm locator.Algorithm, staticLinks bool) IRunner {
	opts := locator.DefaultLocatorOptions()
	opts.Algorithm = algorithm
	return NewRunner(std_algorithm_manager.NewAlgorithmManager(opts, staticLinks))
}

func TestRunQueries(t *testing.T) {
	for _, algorithm := range []locator.Algorithm{locator.Bucket, locator.Octree} {
		t.Run(algorithm.String(), func(t *testing.T) {
			runner := newRunner(algorithm, true)
			opts := &RunnerOptions{NumPoints: 2000, Seed: 7, NumQueries: 100, K: 5, Radius: 0.1, Workers: 4}
			ds, err := loadPoints(opts)
			require.NoError(t, err)

			opts.Command = tools.CommandClosest
			opts.Radius = 0
			report, err := runner.Run(opts)
			require.NoError(t, err)
			assert.Equal(t, 2000, report.NumberOfPoints)
			require.Len(t, report.Results, 100)
			for _, result := range report.Results {
				require.Len(t, result.IDs, 1)
				best := result.Query.Sub(ds.Point(result.IDs[0])).Norm2()
				for id := 0; id < ds.NumberOfPoints(); id++ {
					require.GreaterOrEqual(t, result.Query.Sub(ds.Point(id)).Norm2(), best)
				}
			}

			opts.Command = tools.CommandKNearest
			report, err = runner.Run(opts)
			require.NoError(t, err)
			for _, result := range report.Results {
				require.Len(t, result.IDs, 5)
			}

			opts.Command = tools.CommandRadius
			opts.Radius = 0.1
			report, err = runner.Run(opts)
			require.NoError(t, err)
			for _, result := range report.Results {
				for _, id := range result.IDs {
					require.LessOrEqual(t, result.Query.Sub(ds.Point(id)).Norm2(), 0.01)
				}
			}
		})
	}
}

func TestRunMerge(t *testing.T) {
	input := filepath.Join(t.TempDir(), "points.xyz")
	require.NoError(t, os.WriteFile(input, []byte("0 0 0\n0 0 0\n1 1 1\n0 0 0\n"), 0666))

	report, err := newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandMerge, Input: input})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2, 0}, report.MergeMap)
	assert.Equal(t, 2, report.NumberOfDistinctPoints)

	report, err = newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandMerge, Input: input, Tolerance: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, report.NumberOfDistinctPoints)

	_, err = newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandMerge, Input: filepath.Join(t.TempDir(), "missing.xyz")})
	assert.Error(t, err)
}

func TestRunLinks(t *testing.T) {
	report, err := newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandLinks, GridSize: 4})
	require.NoError(t, err)
	require.NotNil(t, report.Links)
	assert.Equal(t, 64, report.NumberOfPoints)
	assert.Equal(t, 27, report.Links.NumberOfCells)
	assert.Equal(t, 16, report.Links.IDWidth)
	assert.Equal(t, 1, report.Links.MinDegree)
	assert.Equal(t, 8, report.Links.MaxDegree)
	assert.InDelta(t, 3.375, report.Links.MeanDegree, 1e-12)
	assert.Equal(t, 8, report.Links.CornerCells)

	dynamic, err := newRunner(locator.Bucket, false).Run(&RunnerOptions{Command: tools.CommandLinks, GridSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, dynamic.Links.IDWidth)
	assert.Equal(t, report.Links.MeanDegree, dynamic.Links.MeanDegree)
	assert.Equal(t, report.Links.CornerCells, dynamic.Links.CornerCells)

	input := filepath.Join(t.TempDir(), "mesh.txt")
	require.NoError(t, os.WriteFile(input, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nv 1 1 0\nc 0 1 2\nc 1 3 2\n"), 0666))
	report, err = newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandLinks, Input: input})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Links.MaxDegree)
	assert.Equal(t, 1, report.Links.MinDegree)
	assert.Equal(t, 2, report.Links.CornerCells)

	plyInput := filepath.Join(t.TempDir(), "mesh.ply")
	ply := "ply\nformat ascii 1.0\nelement vertex 4\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 2\nproperty list uchar int vertex_indices\nend_header\n" +
		"0 0 0\n1 0 0\n0 1 0\n1 1 0\n3 0 1 2\n3 1 3 2\n"
	require.NoError(t, os.WriteFile(plyInput, []byte(ply), 0666))
	fromPLY, err := newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandLinks, Input: plyInput})
	require.NoError(t, err)
	assert.Equal(t, report.Links, fromPLY.Links)
}

func TestRunCrossCheck(t *testing.T) {
	report, err := newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: tools.CommandCrossCheck, NumPoints: 5000, Seed: 3, NumQueries: 500})
	require.NoError(t, err)
	require.NotNil(t, report.Disagreements)
	assert.Equal(t, 0, *report.Disagreements)
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := newRunner(locator.Bucket, true).Run(&RunnerOptions{Command: "index"})
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	disagreements := 0
	report := &Report{Command: tools.CommandCrossCheck, NumberOfPoints: 3, Disagreements: &disagreements}
	filePath := filepath.Join(t.TempDir(), "reports", "crosscheck.json")
	require.NoError(t, WriteReport(report, filePath))

	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, *report.Disagreements, *decoded.Disagreements)
	assert.Equal(t, report.Command, decoded.Command)
	assert.Nil(t, decoded.Links)
}
