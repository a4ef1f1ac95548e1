// Package pqcol writes and reads the partitioned columnar output files.
//
// One parquet file exists per classification, each append-structured with
// bounded row groups:
//
//   - non-ip: key and weight columns only
//   - non-reflexive: adds vertex, facet and point counts
//   - reflexive: adds the dual point count, hodge numbers, and (when
//     enrichment is enabled for six-dimensional weight systems) optional
//     h22 and euler characteristic columns
//
// File metadata carries the ip/reflexive flags and the dimension, so a
// prior output identifies itself for resumed runs.
package pqcol

import (
	"fmt"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"

	"polyconv/internal/record"
)

// Column names of the required core schema.
const (
	ColKey            = "ws_id"
	ColVertexCount    = "vertex_count"
	ColFacetCount     = "facet_count"
	ColPointCount     = "point_count"
	ColDualPointCount = "dual_point_count"
	ColH22            = "h22"
	ColEuler          = "euler_characteristic"
)

// File metadata keys.
const (
	MetaIP        = "ip"
	MetaReflexive = "reflexive"
	MetaDimension = "dimension"
)

// WeightColumn returns the name of the i-th weight column.
func WeightColumn(i int) string { return fmt.Sprintf("weight%d", i) }

// HodgeColumn returns the name of the i-th hodge number column (h11, h12, ...).
func HodgeColumn(i int) string { return fmt.Sprintf("h1%d", i+1) }

func int32Field(name string, rep parquet.Repetition) schema.Node {
	return schema.NewInt32Node(name, rep, -1)
}

// PartitionSchema builds the schema of one partition file for the given
// class and dimension. derived adds the optional enrichment columns; it is
// only meaningful for the reflexive partition.
func PartitionSchema(class record.Class, dim int, derived bool) (*schema.GroupNode, error) {
	fields := make(schema.FieldList, 0, 2*dim+4)
	fields = append(fields, schema.NewInt64Node(ColKey, parquet.Repetitions.Required, -1))
	for i := 0; i < dim; i++ {
		fields = append(fields, int32Field(WeightColumn(i), parquet.Repetitions.Required))
	}

	switch class {
	case record.NonInteriorPoint:
		// Key and weights only.

	case record.NonReflexive:
		fields = append(fields,
			int32Field(ColVertexCount, parquet.Repetitions.Required),
			int32Field(ColFacetCount, parquet.Repetitions.Required),
			int32Field(ColPointCount, parquet.Repetitions.Required),
		)

	case record.Reflexive:
		fields = append(fields,
			int32Field(ColVertexCount, parquet.Repetitions.Required),
			int32Field(ColFacetCount, parquet.Repetitions.Required),
			int32Field(ColPointCount, parquet.Repetitions.Required),
			int32Field(ColDualPointCount, parquet.Repetitions.Required),
		)
		for i := 0; i < dim-3; i++ {
			fields = append(fields, int32Field(HodgeColumn(i), parquet.Repetitions.Required))
		}
		if derived {
			fields = append(fields,
				int32Field(ColH22, parquet.Repetitions.Optional),
				int32Field(ColEuler, parquet.Repetitions.Optional),
			)
		}

	default:
		return nil, fmt.Errorf("invalid class %d", class)
	}

	node, err := schema.NewGroupNode("schema", parquet.Repetitions.Required, fields, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to build partition schema: %w", err)
	}
	return node, nil
}
