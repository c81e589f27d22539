package registry

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/table"
)

// tableSchema maps the table's dtypes onto a flat parquet group. Every field
// is optional so null cells round-trip.
func tableSchema(names []string, dtypes []table.DType) (*parquet.Schema, error) {
	group := parquet.Group{}
	for i, name := range names {
		var node parquet.Node
		switch dtypes[i] {
		case table.Int64:
			node = parquet.Int(64)
		case table.Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case table.String:
			node = parquet.String()
		case table.Bool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			return nil, fmt.Errorf("no parquet mapping for dtype %s", dtypes[i])
		}
		group[name] = parquet.Optional(node)
	}
	return parquet.NewSchema("table", group), nil
}

func tableShape(t *table.Table) (names []string, dtypes []table.DType) {
	names = t.ColumnNames()
	dtypes = make([]table.DType, len(names))
	for i, name := range names {
		dtypes[i], _ = t.DType(name)
	}
	return names, dtypes
}

// writeParquet streams the table's rows into w. Null cells are omitted from
// the row maps so the optional fields encode them as parquet nulls.
func writeParquet(w io.Writer, t *table.Table) error {
	names, dtypes := tableShape(t)
	schema, err := tableSchema(names, dtypes)
	if err != nil {
		return err
	}
	rows := make([]map[string]any, 0, t.NumRows())
	for _, rec := range t.Records() {
		row := make(map[string]any, len(rec))
		for k, v := range rec {
			if v != nil {
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return parquet.Write[map[string]any](w, rows, schema)
}

// readParquet rebuilds a table from a parquet file using the column order
// and dtypes recorded in the file's metadata.
func readParquet(path string, meta *core.FileMeta) (*table.Table, error) {
	names := make([]string, len(meta.Columns))
	dtypes := make([]table.DType, len(meta.Columns))
	for i, c := range meta.Columns {
		names[i] = c.Name
		dt, err := table.ParseDType(c.Type)
		if err != nil {
			return nil, err
		}
		dtypes[i] = dt
	}
	schema, err := tableSchema(names, dtypes)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, err
	}
	reader := parquet.NewGenericReader[map[string]any](pf, schema)
	defer reader.Close()
	// Reconstructing into map rows requires the maps to already be allocated.
	rows := make([]map[string]any, reader.NumRows())
	for i := range rows {
		rows[i] = make(map[string]any, len(names))
	}
	for read := 0; read < len(rows); {
		n, err := reader.Read(rows[read:])
		read += n
		if err == io.EOF {
			rows = rows[:read]
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return table.FromRecords(names, dtypes, rows)
}
