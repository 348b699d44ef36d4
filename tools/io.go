package tools

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/ecopia-map/mesh_locator/internal/data"
)

func OpenFileOrFail(filePath string) *os.File {
	file, err := os.Open(filePath)
	if err != nil {
		glog.Fatal(err)
	}

	return file
}

func CreateDirectoryIfDoesNotExist(directory string) error {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		err := os.MkdirAll(directory, 0777)
		if err != nil {
			return err
		}
	}
	return nil
}

// Splits a line on blanks and commas. Returns nil for empty lines and # comments.
func splitLine(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}

func parseVector(fields []string) (r3.Vector, error) {
	if len(fields) < 3 {
		return r3.Vector{}, errors.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "coordinate %d", i)
		}
		xyz[i] = v
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// Reads one point per line as "x y z". Columns after the third are ignored.
func ReadXYZ(r io.Reader) ([]r3.Vector, error) {
	var points []r3.Vector
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := splitLine(scanner.Text())
		if fields == nil {
			continue
		}
		p, err := parseVector(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading points")
	}
	return points, nil
}

func ReadXYZFile(filePath string) ([]r3.Vector, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	points, err := ReadXYZ(file)
	return points, errors.Wrap(err, filePath)
}

// Reads a mesh made of "v x y z" point lines and "c id id ..." cell lines. Point ids are
// numbered from 0 in the order of the v lines. The mesh is validated before being returned.
func ReadMesh(r io.Reader) (*data.Mesh, error) {
	mesh := data.NewMesh(nil)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := splitLine(scanner.Text())
		if fields == nil {
			continue
		}
		switch fields[0] {
		case "v":
			p, err := parseVector(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			mesh.InsertNextPoint(p)
		case "c":
			ids := make([]int, 0, len(fields)-1)
			for _, field := range fields[1:] {
				id, err := strconv.Atoi(field)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNo)
				}
				ids = append(ids, id)
			}
			mesh.InsertNextCell(ids...)
		default:
			return nil, errors.Errorf("line %d: unknown record %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading mesh")
	}
	if err := data.Validate(mesh); err != nil {
		return nil, errors.Wrap(err, "invalid mesh")
	}
	return mesh, nil
}

func ReadMeshFile(filePath string) (*data.Mesh, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	mesh, err := ReadMesh(file)
	return mesh, errors.Wrap(err, filePath)
}
