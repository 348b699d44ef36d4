package io

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type QueryKind string

const (
	QueryClosest  QueryKind = "CLOSEST"
	QueryKNearest QueryKind = "KNN"
	QueryRadius   QueryKind = "RADIUS"
)

func (e QueryKind) String() string {
	return string(e)
}

func ParseQueryKind(value string) (QueryKind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "CLOSEST":
		return QueryClosest, nil
	case "KNN":
		return QueryKNearest, nil
	case "RADIUS":
		return QueryRadius, nil
	}
	return "", errors.Errorf("unknown query kind %q", value)
}

// Describes the query run for every position of a batch
type QueryOptions struct {
	Kind   QueryKind
	N      int     // number of neighbors of KNN queries
	Radius float64 // radius of RADIUS queries, the search radius of CLOSEST queries when positive
}

// Answer to the query at one position. IDs is empty when no point qualifies.
type QueryResult struct {
	Query r3.Vector `json:"query"`
	IDs   []int     `json:"ids"`
}

// Contains the minimal data needed to answer a contiguous range of queries of a batch
type WorkUnit struct {
	Begin int
	End   int
}
