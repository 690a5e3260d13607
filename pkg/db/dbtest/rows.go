package dbtest

import (
	"github.com/pkg/errors"
	"github.com/pseudomuto/groundskeeper/pkg/db"
)

// sliceRows is a db.Rows over pre-built rows. It covers the scan targets
// groundskeeper uses: strings, ints, and nullable int64 catalog facets.
type sliceRows struct {
	rows [][]any
	idx  int
}

var _ db.Rows = (*sliceRows)(nil)

// oneRow returns a single-row result, used for existence probes where only
// Next matters.
func oneRow() db.Rows {
	return &sliceRows{rows: [][]any{{int64(1)}}}
}

// noRows returns an empty result.
func noRows() db.Rows {
	return &sliceRows{}
}

func (r *sliceRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("scan called without next")
	}

	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return errors.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}

	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return errors.Wrapf(err, "column %d", i)
		}
	}
	return nil
}

func (r *sliceRows) Err() error { return nil }

func (r *sliceRows) Close() error { return nil }

func assign(dest, src any) error {
	switch d := dest.(type) {
	case *string:
		v, ok := src.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into *string", src)
		}
		*d = v
		return nil

	case *int:
		switch v := src.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return errors.Errorf("cannot scan %T into *int", src)
		}
		return nil

	case *int64:
		switch v := src.(type) {
		case int64:
			*d = v
		case int:
			*d = int64(v)
		default:
			return errors.Errorf("cannot scan %T into *int64", src)
		}
		return nil

	case **int64:
		if src == nil {
			*d = nil
			return nil
		}
		v, ok := src.(*int64)
		if !ok {
			return errors.Errorf("cannot scan %T into **int64", src)
		}
		*d = v
		return nil
	}
	return errors.Errorf("unsupported scan destination %T", dest)
}
