package marc

import (
	"encoding/xml"
	"fmt"
	"io"
)

// RecordWriter serializes records to an output stream. Close must be called
// to flush any trailing framing.
type RecordWriter interface {
	Write(r *Record) error
	Close() error
}

// NewWriter picks a writer for the output format ("marc21" or "marcxml").
func NewWriter(w io.Writer, format string) (RecordWriter, error) {
	switch format {
	case "marc21":
		return NewBinaryWriter(w), nil
	case "marcxml":
		return NewXMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported record format %q", format)
	}
}

// BinaryWriter emits ISO 2709 binary MARC 21.
type BinaryWriter struct {
	w io.Writer
}

// NewBinaryWriter wraps an io.Writer.
func NewBinaryWriter(w io.Writer) *BinaryWriter {
	return &BinaryWriter{w: w}
}

// Write serializes one record: leader, directory, field data, terminator.
func (bw *BinaryWriter) Write(r *Record) error {
	var directory []byte
	var data []byte
	for i := range r.fields {
		f := &r.fields[i]
		contents := f.contents()
		start := len(data)
		data = append(data, contents...)
		data = append(data, fieldTerminator)
		entry := fmt.Sprintf("%3.3s%04d%05d", f.Tag, len(contents)+1, start)
		directory = append(directory, entry...)
	}
	directory = append(directory, fieldTerminator)

	leader := []byte(r.Leader)
	if len(leader) != 24 {
		return fmt.Errorf("leader must be 24 bytes, got %d", len(leader))
	}
	baseAddress := 24 + len(directory)
	recordLength := baseAddress + len(data) + 1
	copy(leader[0:5], fmt.Sprintf("%05d", recordLength))
	copy(leader[12:17], fmt.Sprintf("%05d", baseAddress))

	if _, err := bw.w.Write(leader); err != nil {
		return fmt.Errorf("write leader: %w", err)
	}
	if _, err := bw.w.Write(directory); err != nil {
		return fmt.Errorf("write directory: %w", err)
	}
	if _, err := bw.w.Write(data); err != nil {
		return fmt.Errorf("write field data: %w", err)
	}
	if _, err := bw.w.Write([]byte{recordTerminator}); err != nil {
		return fmt.Errorf("write record terminator: %w", err)
	}
	return nil
}

// Close is a no-op; binary MARC has no trailing framing.
func (bw *BinaryWriter) Close() error {
	return nil
}

const marcxmlNamespace = "http://www.loc.gov/MARC21/slim"

type xmlSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

type xmlControlField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type xmlDataField struct {
	Tag       string        `xml:"tag,attr"`
	Ind1      string        `xml:"ind1,attr"`
	Ind2      string        `xml:"ind2,attr"`
	Subfields []xmlSubfield `xml:"subfield"`
}

type xmlRecord struct {
	XMLName       xml.Name          `xml:"record"`
	Leader        string            `xml:"leader"`
	ControlFields []xmlControlField `xml:"controlfield"`
	DataFields    []xmlDataField    `xml:"datafield"`
}

// XMLWriter emits a MARCXML collection document.
type XMLWriter struct {
	w       io.Writer
	started bool
	closed  bool
}

// NewXMLWriter wraps an io.Writer.
func NewXMLWriter(w io.Writer) *XMLWriter {
	return &XMLWriter{w: w}
}

func (xw *XMLWriter) start() error {
	if xw.started {
		return nil
	}
	header := xml.Header + `<collection xmlns="` + marcxmlNamespace + `">` + "\n"
	if _, err := io.WriteString(xw.w, header); err != nil {
		return fmt.Errorf("write collection header: %w", err)
	}
	xw.started = true
	return nil
}

// Write serializes one record inside the collection element.
func (xw *XMLWriter) Write(r *Record) error {
	if err := xw.start(); err != nil {
		return err
	}
	out := xmlRecord{Leader: r.Leader}
	for i := range r.fields {
		f := &r.fields[i]
		if f.IsControl() {
			out.ControlFields = append(out.ControlFields, xmlControlField{Tag: f.Tag, Value: f.Value})
			continue
		}
		df := xmlDataField{Tag: f.Tag, Ind1: string(indicator(f.Ind1)), Ind2: string(indicator(f.Ind2))}
		for _, s := range f.Subfields {
			df.Subfields = append(df.Subfields, xmlSubfield{Code: string(s.Code), Value: s.Value})
		}
		out.DataFields = append(out.DataFields, df)
	}

	enc := xml.NewEncoder(xw.w)
	enc.Indent("  ", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := io.WriteString(xw.w, "\n"); err != nil {
		return fmt.Errorf("write record separator: %w", err)
	}
	return nil
}

// Close terminates the collection element.
func (xw *XMLWriter) Close() error {
	if xw.closed {
		return nil
	}
	xw.closed = true
	if !xw.started {
		if err := xw.start(); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(xw.w, "</collection>\n"); err != nil {
		return fmt.Errorf("write collection footer: %w", err)
	}
	return nil
}
