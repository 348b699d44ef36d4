package tools

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
)

const plyExtension = ".ply"

// Reads an ascii PLY file. The x, y and z properties of the vertex elements become the mesh
// points and the vertex_indices (or vertex_index) lists of the face elements become its cells.
func ReadPLY(r io.Reader) (mesh *data.Mesh, err error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading ply")
	}

	// the parser panics on malformed input
	defer func() {
		if rec := recover(); rec != nil {
			mesh, err = nil, errors.Errorf("invalid ply input: %v", rec)
		}
	}()
	ply := goply.New(bytes.NewReader(bytes.TrimSpace(content)))

	mesh = data.NewMesh(nil)
	for i, vertex := range ply.Elements("vertex") {
		var xyz [3]float64
		for j, name := range [3]string{"x", "y", "z"} {
			v, ok := plyNumber(vertex.Property(name))
			if !ok {
				return nil, errors.Errorf("vertex %d: missing or non numeric property %q", i, name)
			}
			xyz[j] = v
		}
		mesh.InsertNextPoint(r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	for i, face := range ply.Elements("face") {
		list := face.Property("vertex_indices")
		if list == nil {
			list = face.Property("vertex_index")
		}
		values, ok := list.([]interface{})
		if !ok {
			return nil, errors.Errorf("face %d: missing vertex index list", i)
		}
		ids := make([]int, len(values))
		for j, value := range values {
			id, ok := plyNumber(value)
			if !ok {
				return nil, errors.Errorf("face %d: non numeric vertex index %v", i, value)
			}
			ids[j] = int(id)
		}
		mesh.InsertNextCell(ids...)
	}

	if err := data.Validate(mesh); err != nil {
		return nil, errors.Wrap(err, "invalid ply mesh")
	}
	return mesh, nil
}

func plyNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int8:
		return float64(v), true
	case uint8:
		return float64(v), true
	case int16:
		return float64(v), true
	case uint16:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint32:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func ReadPLYFile(filePath string) (*data.Mesh, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	mesh, err := ReadPLY(file)
	return mesh, errors.Wrap(err, filePath)
}

func IsPLYFile(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), plyExtension)
}

// Reads the points of a .ply file or of an xyz text file
func ReadPointsFile(filePath string) ([]r3.Vector, error) {
	if !IsPLYFile(filePath) {
		return ReadXYZFile(filePath)
	}
	mesh, err := ReadPLYFile(filePath)
	if err != nil {
		return nil, err
	}
	points := make([]r3.Vector, mesh.NumberOfPoints())
	for i := range points {
		points[i] = mesh.Point(i)
	}
	return points, nil
}

// Reads a mesh from a .ply file or from the v/c text format of ReadMesh
func ReadMeshOrPLYFile(filePath string) (*data.Mesh, error) {
	if IsPLYFile(filePath) {
		return ReadPLYFile(filePath)
	}
	return ReadMeshFile(filePath)
}
