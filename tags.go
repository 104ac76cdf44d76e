package loom

import (
	"fmt"
	"sort"
)

// TagKind names a kind of tag
type TagKind string

// TagGroupKey is attached by groupby to every group's members
const TagGroupKey TagKind = "groupKey"

// Tags is an immutable mapping from tag kind to tag value carried alongside a
// value. Tags never take part in equality, ordering or the value's own type.
type Tags struct {
	m map[TagKind]any
}

// With returns a copy of t with kind set to v
func (t Tags) With(kind TagKind, v any) Tags {
	m := make(map[TagKind]any, len(t.m)+1)
	for k, val := range t.m {
		m[k] = val
	}
	m[kind] = v
	return Tags{m: m}
}

// Merge returns the union of t and o; o wins on conflicts
func (t Tags) Merge(o Tags) Tags {
	if len(o.m) == 0 {
		return t
	}
	if len(t.m) == 0 {
		return o
	}
	m := make(map[TagKind]any, len(t.m)+len(o.m))
	for k, v := range t.m {
		m[k] = v
	}
	for k, v := range o.m {
		m[k] = v
	}
	return Tags{m: m}
}

// Get returns the value of a tag
func (t Tags) Get(kind TagKind) (any, bool) {
	v, ok := t.m[kind]
	return v, ok
}

// Len returns the number of tags
func (t Tags) Len() int {
	return len(t.m)
}

// Kinds returns the attached tag kinds in sorted order
func (t Tags) Kinds() []TagKind {
	kinds := make([]TagKind, 0, len(t.m))
	for k := range t.m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Type describes the tags as a record type, one field per kind
func (t Tags) Type() *Type {
	kinds := t.Kinds()
	fields := make([]Field, len(kinds))
	for i, k := range kinds {
		fields[i] = Field{Name: string(k), Type: TypeOf(t.m[k])}
	}
	return RecordOf(fields...)
}

func (t Tags) String() string {
	return fmt.Sprintf("Tags%v", t.m)
}

// ============================================================================
// Attach / read
// ============================================================================

// Attach returns d with a tag attached. Column data is shared, not copied.
func Attach(d Datum, kind TagKind, v any) Datum {
	if d.shape == ShapeColumn {
		return Column(d.list.WithTag(kind, v))
	}
	d.tags = d.tags.With(kind, v)
	return d
}

// GetTag reads a tag off a datum
func GetTag(d Datum, kind TagKind) (any, error) {
	v, ok := d.Tags().Get(kind)
	if !ok {
		return nil, &TagNotFoundError{Kind: kind}
	}
	return v, nil
}

// WithTag returns a list sharing l's data with a value tag attached
func (l *List) WithTag(kind TagKind, v any) *List {
	out := *l
	out.tags = l.tags.With(kind, v)
	return &out
}

// Tag reads a value tag off the list
func (l *List) Tag(kind TagKind) (any, error) {
	v, ok := l.tags.Get(kind)
	if !ok {
		return nil, &TagNotFoundError{Kind: kind}
	}
	return v, nil
}

// Tags returns the value tags of the list
func (l *List) Tags() Tags {
	return l.tags
}

// RowTags returns the tags attached to row i
func (l *List) RowTags(i int) Tags {
	if l.rowTags == nil || i < 0 || i >= len(l.rowTags) {
		return Tags{}
	}
	return l.rowTags[i]
}

// WithRowTags returns a list sharing l's data with per-row tags.
// tags must have one entry per row.
func (l *List) WithRowTags(tags []Tags) (*List, error) {
	if len(tags) != l.Len() {
		return nil, &LengthMismatchError{Param: "tags", Left: l.Len(), Right: len(tags)}
	}
	out := *l
	out.rowTags = compactRowTags(append([]Tags{}, tags...))
	return &out, nil
}

// TaggedType returns the list's column type wrapped in its value tags, or the
// plain column type when no tags are attached
func (l *List) TaggedType() *Type {
	if l.tags.Len() == 0 {
		return l.ColumnType()
	}
	return TaggedOf(l.tags.Type(), l.ColumnType())
}

// compactRowTags drops the slice when no row carries a tag
func compactRowTags(tags []Tags) []Tags {
	for _, t := range tags {
		if t.Len() > 0 {
			return tags
		}
	}
	return nil
}
