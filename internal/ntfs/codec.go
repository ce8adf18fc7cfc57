package ntfs

import (
	"encoding"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// extraTag marks a map[string]string field that receives the columns no
// other field claims. WriteTable appends them after the tagged columns.
const extraTag = "*"

var (
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
)

// RowError describes a record that could not be decoded. Line is the
// 1-based record number in the file, the header being record 1.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// ReadTable decodes a CSV table into a slice of T using the csv struct tags.
// Columns without a matching field go to the extra field of T, or are
// ignored when T has none. When skip is nil a malformed
// record aborts the read; otherwise skip is called and the record dropped.
func ReadTable[T any](r io.Reader, skip func(*RowError)) ([]T, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	layout := buildLayout[T](header)

	var results []T
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("read record: %w", err)
			}
			if skip == nil {
				return nil, &RowError{Line: line, Err: err}
			}
			skip(&RowError{Line: line, Err: err})
			continue
		}
		item, err := decodeRecord[T](record, layout)
		if err == nil {
			err = validate.Struct(item)
		}
		if err != nil {
			rowErr := &RowError{Line: line, Err: err}
			if skip == nil {
				return nil, rowErr
			}
			skip(rowErr)
			continue
		}
		results = append(results, item)
	}

	return results, nil
}

// WriteTable encodes rows as a CSV table with one column per csv tag of T,
// followed by the extra columns found in any row, in name order.
func WriteTable[T any](w io.Writer, rows []T) error {
	typ := reflect.TypeFor[T]()
	var header []string
	var fields []int
	extraField := -1
	for i := 0; i < typ.NumField(); i++ {
		switch tag := typ.Field(i).Tag.Get("csv"); tag {
		case "":
		case extraTag:
			extraField = i
		default:
			header = append(header, tag)
			fields = append(fields, i)
		}
	}

	var extraColumns []string
	if extraField >= 0 {
		seen := make(map[string]bool)
		for _, row := range rows {
			iter := reflect.ValueOf(row).Field(extraField).MapRange()
			for iter.Next() {
				if name := iter.Key().String(); !seen[name] {
					seen[name] = true
					extraColumns = append(extraColumns, name)
				}
			}
		}
		slices.Sort(extraColumns)
		header = append(header, extraColumns...)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		v := reflect.ValueOf(row)
		for i, f := range fields {
			s, err := encodeValue(v.Field(f))
			if err != nil {
				return fmt.Errorf("encode %s: %w", header[i], err)
			}
			record[i] = s
		}
		if len(extraColumns) > 0 {
			extra := v.Field(extraField)
			for i, name := range extraColumns {
				cell := extra.MapIndex(reflect.ValueOf(name))
				record[len(fields)+i] = ""
				if cell.IsValid() {
					record[len(fields)+i] = cell.String()
				}
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
	column     string
}

type extraColumn struct {
	csvIndex int
	name     string
}

// tableLayout maps the columns of a CSV header onto the fields of a struct.
type tableLayout struct {
	fields     []fieldMapping
	extraField int // -1 when the struct has no extra field
	extras     []extraColumn
}

// buildLayout creates a mapping from CSV column positions to struct field positions.
func buildLayout[T any](header []string) tableLayout {
	typ := reflect.TypeFor[T]()

	layout := tableLayout{extraField: -1}
	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		switch tag := typ.Field(i).Tag.Get("csv"); tag {
		case "":
		case extraTag:
			layout.extraField = i
		default:
			tagToField[tag] = i
		}
	}

	for csvIdx, colName := range header {
		colName = strings.TrimSpace(colName)
		if fieldIdx, ok := tagToField[colName]; ok {
			layout.fields = append(layout.fields, fieldMapping{csvIndex: csvIdx, fieldIndex: fieldIdx, column: colName})
			continue
		}
		if layout.extraField >= 0 && colName != "" {
			layout.extras = append(layout.extras, extraColumn{csvIndex: csvIdx, name: colName})
		}
	}
	return layout
}

// decodeRecord fills a struct T from a CSV record using the layout.
func decodeRecord[T any](record []string, layout tableLayout) (T, error) {
	var t T
	v := reflect.ValueOf(&t).Elem()
	for _, fm := range layout.fields {
		if fm.csvIndex >= len(record) {
			continue
		}
		if err := decodeValue(v.Field(fm.fieldIndex), strings.TrimSpace(record[fm.csvIndex])); err != nil {
			return t, fmt.Errorf("column %s: %w", fm.column, err)
		}
	}
	if len(layout.extras) > 0 {
		extra := v.Field(layout.extraField)
		extra.Set(reflect.MakeMapWithSize(extra.Type(), len(layout.extras)))
		for _, col := range layout.extras {
			var cell string
			if col.csvIndex < len(record) {
				cell = record[col.csvIndex]
			}
			extra.SetMapIndex(reflect.ValueOf(col.name), reflect.ValueOf(cell))
		}
	}
	return t, nil
}

// decodeValue parses s into v. An empty cell leaves strings empty and pointers
// nil; every other kind must parse.
func decodeValue(v reflect.Value, s string) error {
	if v.Kind() == reflect.Pointer {
		if s == "" {
			return nil
		}
		elem := reflect.New(v.Type().Elem())
		if err := decodeValue(elem.Elem(), s); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}
	if reflect.PointerTo(v.Type()).Implements(textUnmarshalerType) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}

func encodeValue(v reflect.Value) (string, error) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", nil
		}
		return encodeValue(v.Elem())
	}
	if v.Type().Implements(textMarshalerType) {
		b, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	default:
		return "", fmt.Errorf("unsupported field type %s", v.Type())
	}
}
