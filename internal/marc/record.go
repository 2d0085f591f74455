// Package marc models MARC 21 bibliographic records and their binary and XML
// serializations. It knows nothing about harvesting; the conversion package
// builds records, this package stores and writes them.
package marc

import (
	"fmt"
	"strings"
)

// Wire-format delimiters from the MARC 21 specification.
const (
	subfieldDelimiter byte = 0x1F
	fieldTerminator   byte = 0x1E
	recordTerminator  byte = 0x1D
)

// defaultLeader describes a new language-material serial component part in
// Unicode encoding. The length and base-address slots stay zero until the
// binary writer fills them.
const defaultLeader = "00000nab a2200000   4500"

// Subfield is one coded value inside a data field.
type Subfield struct {
	Code  byte
	Value string
}

// Sub is shorthand for building a Subfield.
func Sub(code byte, value string) Subfield {
	return Subfield{Code: code, Value: value}
}

// Field is a control field (Value set) or a data field (Subfields set).
type Field struct {
	Tag       string
	Ind1      byte
	Ind2      byte
	Value     string
	Subfields []Subfield
}

// NewControlField builds a control field (tags below 010).
func NewControlField(tag, value string) Field {
	return Field{Tag: tag, Value: value}
}

// NewDataField builds a data field with indicators and subfields.
func NewDataField(tag string, ind1, ind2 byte, subfields ...Subfield) Field {
	return Field{Tag: tag, Ind1: ind1, Ind2: ind2, Subfields: subfields}
}

// IsControl reports whether the field carries a bare value instead of
// subfields. Bookkeeping tags (non-numeric) count as data fields.
func (f *Field) IsControl() bool {
	return len(f.Subfields) == 0 && f.Tag < "010"
}

// Subfield returns the first subfield with the given code.
func (f *Field) Subfield(code byte) (string, bool) {
	for _, s := range f.Subfields {
		if s.Code == code {
			return s.Value, true
		}
	}
	return "", false
}

// AddSubfield appends a subfield.
func (f *Field) AddSubfield(code byte, value string) {
	f.Subfields = append(f.Subfields, Subfield{Code: code, Value: value})
}

// indicator normalizes an unset indicator byte to blank.
func indicator(b byte) byte {
	if b == 0 {
		return ' '
	}
	return b
}

// contents renders the field body in wire form, used by both the binary
// writer and the checksum.
func (f *Field) contents() []byte {
	if f.IsControl() {
		return []byte(f.Value)
	}
	var buf []byte
	buf = append(buf, indicator(f.Ind1), indicator(f.Ind2))
	for _, s := range f.Subfields {
		buf = append(buf, subfieldDelimiter, s.Code)
		buf = append(buf, s.Value...)
	}
	return buf
}

// Record is an ordered set of fields plus a leader.
type Record struct {
	Leader string
	fields []Field
}

// NewRecord builds an empty record with the default leader.
func NewRecord() *Record {
	return &Record{Leader: defaultLeader}
}

// InsertField inserts in tag order, before any existing field with the same
// tag. Repeated insertion of one tag therefore stacks newest-first, which the
// creator-generation code relies on when it iterates authors in reverse.
func (r *Record) InsertField(f Field) {
	idx := len(r.fields)
	for i, existing := range r.fields {
		if existing.Tag >= f.Tag {
			idx = i
			break
		}
	}
	r.fields = append(r.fields, Field{})
	copy(r.fields[idx+1:], r.fields[idx:])
	r.fields[idx] = f
}

// Fields returns all fields in record order.
func (r *Record) Fields() []Field {
	return r.fields
}

// FieldsWithTag returns all fields carrying the tag, in record order.
func (r *Record) FieldsWithTag(tag string) []Field {
	var out []Field
	for _, f := range r.fields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}

// FirstField returns a pointer to the first field with the tag, or nil.
func (r *Record) FirstField(tag string) *Field {
	for i := range r.fields {
		if r.fields[i].Tag == tag {
			return &r.fields[i]
		}
	}
	return nil
}

// RemoveFields deletes every field the predicate matches.
func (r *Record) RemoveFields(match func(*Field) bool) {
	kept := r.fields[:0]
	for i := range r.fields {
		if !match(&r.fields[i]) {
			kept = append(kept, r.fields[i])
		}
	}
	r.fields = kept
}

// ControlNumber returns the 001 value, if set.
func (r *Record) ControlNumber() string {
	if f := r.FirstField("001"); f != nil {
		return f.Value
	}
	return ""
}

// ParseFieldSpec parses a custom-field template of the form
// <tag><ind1><ind2><subfields>, e.g. "084  a%ssgn%". The subfield part is
// either a single code followed by its value, or '$'-separated code+value
// chunks for multi-subfield templates.
func ParseFieldSpec(spec string) (Field, error) {
	if len(spec) < 4 {
		return Field{}, fmt.Errorf("field spec %q too short", spec)
	}
	tag := spec[:3]
	if tag < "010" {
		return NewControlField(tag, spec[3:]), nil
	}
	if len(spec) < 6 {
		return Field{}, fmt.Errorf("field spec %q too short", spec)
	}
	f := Field{Tag: tag, Ind1: spec[3], Ind2: spec[4]}
	rest := spec[5:]
	if strings.HasPrefix(rest, "$") {
		for _, chunk := range strings.Split(rest[1:], "$") {
			if len(chunk) < 2 {
				return Field{}, fmt.Errorf("field spec %q: empty subfield chunk", spec)
			}
			f.AddSubfield(chunk[0], chunk[1:])
		}
	} else {
		f.AddSubfield(rest[0], rest[1:])
	}
	return f, nil
}
