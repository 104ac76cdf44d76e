package loom

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ============================================================================
// Arrow Export
// ============================================================================

// ToRecord exports a list of records as an Arrow Record, one column per field.
// The caller is responsible for calling Release() on the returned Record.
func (l *List) ToRecord(mem memory.Allocator) (arrow.Record, error) {
	rec := NonNone(Untagged(l.elem))
	if rec.kind != KindRecord {
		return nil, fmt.Errorf("%w: ToRecord needs a list of records, have %s", ErrUnsupportedType, l.ListType())
	}

	st, ok := l.arr.(*array.Struct)
	if !ok {
		arr, err := buildArray(mem, rec, l.Values())
		if err != nil {
			return nil, err
		}
		defer arr.Release()
		st = arr.(*array.Struct)
	}
	return array.RecordFromStructArray(st, nil), nil
}

// ToTable exports a list of records as a single-chunk Arrow Table.
// The caller is responsible for calling Release() on the returned Table.
func (l *List) ToTable(mem memory.Allocator) (arrow.Table, error) {
	record, err := l.ToRecord(mem)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	return array.NewTableFromRecords(record.Schema(), []arrow.Record{record}), nil
}

// ============================================================================
// Arrow Import
// ============================================================================

// FromRecord creates a list of records from an Arrow Record, one field per
// column. Nullable columns become Optional fields.
func FromRecord(record arrow.Record, prov Provenance) (*List, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}

	elem, err := typeFromArrow(arrow.StructOf(record.Schema().Fields()...))
	if err != nil {
		return nil, err
	}

	st := array.RecordToStructArray(record)
	defer st.Release()

	return FromArrow(elem, st, prov)
}

// FromTable creates a list of records from an Arrow Table, concatenating
// its record batches in order.
func FromTable(table arrow.Table, prov Provenance) (*List, error) {
	if table == nil {
		return nil, errors.New("table is nil")
	}

	reader := array.NewTableReader(table, 0)
	defer reader.Release()

	var parts []*List
	for reader.Next() {
		part, err := FromRecord(reader.Record(), prov)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", len(parts), err)
		}
		parts = append(parts, part)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		elem, err := typeFromArrow(arrow.StructOf(table.Schema().Fields()...))
		if err != nil {
			return nil, err
		}
		return NewList(elem, nil, prov)
	}
	return Concat(memory.DefaultAllocator, parts...)
}
