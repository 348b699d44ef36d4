package locator

import (
	"strings"

	"github.com/pkg/errors"
)

type Algorithm string
type MergeStrategy string

const (
	// Uniform grid of buckets sized from a target number of points per bucket. Fastest to build
	// and to query on evenly distributed points.
	Bucket Algorithm = "BUCKET"

	// Recursive octant subdivision until regions hold few enough points. Adapts to strongly
	// clustered points where a uniform grid would be mostly empty.
	Octree Algorithm = "OCTREE"
)

const (
	// Points are processed one at a time in id order, every point merges into a lower id.
	// Reproducible but serial.
	PointOrder MergeStrategy = "POINT_ORDER"

	// Buckets are processed in parallel waves of non interfering super blocks. The chosen
	// representatives may differ from POINT_ORDER.
	BinOrder MergeStrategy = "BIN_ORDER"
)

func (e Algorithm) String() string {
	return string(e)
}

func ParseAlgorithm(value string) (Algorithm, error) {
	normalizedValue := strings.Trim(strings.ToUpper(value), " ")
	if normalizedValue == string(Bucket) {
		return Bucket, nil
	} else if normalizedValue == string(Octree) {
		return Octree, nil
	}
	return "", errors.Errorf("unknown locator algorithm %q", value)
}

func (e MergeStrategy) String() string {
	return string(e)
}

func ParseMergeStrategy(value string) (MergeStrategy, error) {
	normalizedValue := strings.ReplaceAll(strings.Trim(strings.ToUpper(value), " "), "-", "_")
	if normalizedValue == string(PointOrder) {
		return PointOrder, nil
	} else if normalizedValue == string(BinOrder) {
		return BinOrder, nil
	}
	return "", errors.Errorf("unknown merge strategy %q", value)
}

// Contains the options needed to configure a point locator
type LocatorOptions struct {
	Algorithm Algorithm // Locator implementation to use

	NumberOfPointsPerBucket int    // Target average number of points per bucket when Automatic
	MaxNumberOfBuckets      int64  // Upper bound on the number of buckets
	Divisions               [3]int // Buckets per axis when not Automatic
	Automatic               bool   // Derive the divisions from NumberOfPointsPerBucket

	MaximumPointsPerRegion int  // Octree regions holding more points are subdivided
	MaxLevel               int  // Maximum octree depth
	CreateCubicOctants     bool // Use a cubic root region

	MergeStrategy MergeStrategy // Strategy of tolerance merges
}

func DefaultLocatorOptions() *LocatorOptions {
	return &LocatorOptions{
		Algorithm:               Bucket,
		NumberOfPointsPerBucket: 5,
		MaxNumberOfBuckets:      1<<31 - 1,
		Divisions:               [3]int{50, 50, 50},
		Automatic:               true,
		MaximumPointsPerRegion:  100,
		MaxLevel:                20,
		CreateCubicOctants:      true,
		MergeStrategy:           BinOrder,
	}
}

func (opt *LocatorOptions) Copy() *LocatorOptions {
	newOpt := *opt
	return &newOpt
}
