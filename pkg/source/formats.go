package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
)

// Column names shared by the csv, avro and arrow layouts.
const (
	ColumnDetectorID = "detector_id"
	ColumnTimestamp  = "timestamp"
)

// fill copies parallel slices into a batch from alloc.
func fill(alloc *events.Allocator, ids []int64, ts []int32) (*events.Batch, error) {
	if len(ids) != len(ts) {
		return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource,
			"detector ID count %d does not match timestamp count %d", len(ids), len(ts))
	}
	batch, err := alloc.New(len(ids))
	if err != nil {
		return nil, err
	}
	copy(batch.DetectorIDs(), ids)
	copy(batch.Timestamps(), ts)
	return batch, nil
}

type jsonSource struct {
	DetectorIDs []int64 `json:"detector_id"`
	Timestamps  []int32 `json:"time_of_flight"`
}

func decodeJSON(r io.Reader, alloc *events.Allocator) (*events.Batch, error) {
	var src jsonSource
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&src); err != nil {
		return nil, malformed(err, "json")
	}
	return fill(alloc, src.DetectorIDs, src.Timestamps)
}

// decodeCSV reads "detector_id,timestamp" rows. A first row that does not
// parse as numbers is treated as a header.
func decodeCSV(r io.Reader, alloc *events.Allocator) (*events.Batch, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
	reader.Comment = '#'

	var (
		ids  []int64
		ts   []int32
		line int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(err, "csv")
		}
		line++

		id, idErr := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		t, tErr := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 32)
		if idErr != nil || tErr != nil {
			if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), ColumnDetectorID) {
				continue
			}
			return nil, malformed(errors.Join(idErr, tErr), fmt.Sprintf("csv (line %d)", line))
		}
		ids = append(ids, id)
		ts = append(ts, int32(t))
	}
	return fill(alloc, ids, ts)
}

// decodeAvro reads an object container file of {detector_id: long, timestamp: int} records.
func decodeAvro(r io.Reader, alloc *events.Allocator) (*events.Batch, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, malformed(err, "avro")
	}

	var (
		ids []int64
		ts  []int32
	)
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, malformed(err, "avro")
		}
		record, ok := datum.(map[string]interface{})
		if !ok {
			return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "avro datum is %T, want record", datum)
		}
		id, ok := record[ColumnDetectorID].(int64)
		if !ok {
			return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "avro field %s is %T, want long",
				ColumnDetectorID, record[ColumnDetectorID])
		}
		t, ok := record[ColumnTimestamp].(int32)
		if !ok {
			return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "avro field %s is %T, want int",
				ColumnTimestamp, record[ColumnTimestamp])
		}
		ids = append(ids, id)
		ts = append(ts, t)
	}
	if err := ocf.Err(); err != nil {
		return nil, malformed(err, "avro")
	}
	return fill(alloc, ids, ts)
}

// AvroSchema is the record schema of .avro sources.
const AvroSchema = `{
  "type": "record",
  "name": "DetectorEvent",
  "fields": [
    {"name": "detector_id", "type": "long"},
    {"name": "timestamp", "type": "int"}
  ]
}`

// arrowMagic opens the Arrow IPC file format; anything else is read as an
// IPC stream.
var arrowMagic = []byte("ARROW1")

func decodeArrow(r io.Reader, alloc *events.Allocator) (*events.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, malformed(err, "arrow")
	}
	pool := memory.NewGoAllocator()

	var (
		ids []int64
		ts  []int32
	)
	collect := func(rec arrow.Record) error {
		recIDs, recTS, err := arrowColumns(rec)
		if err != nil {
			return err
		}
		ids = append(ids, recIDs...)
		ts = append(ts, recTS...)
		return nil
	}

	if bytes.HasPrefix(data, arrowMagic) {
		fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(pool))
		if err != nil {
			return nil, malformed(err, "arrow")
		}
		defer fr.Close()
		for i := 0; i < fr.NumRecords(); i++ {
			rec, err := fr.Record(i)
			if err != nil {
				return nil, malformed(err, "arrow")
			}
			if err := collect(rec); err != nil {
				return nil, err
			}
		}
	} else {
		sr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(pool))
		if err != nil {
			return nil, malformed(err, "arrow")
		}
		defer sr.Release()
		for sr.Next() {
			if err := collect(sr.Record()); err != nil {
				return nil, err
			}
		}
		if err := sr.Err(); err != nil {
			return nil, malformed(err, "arrow")
		}
	}
	return fill(alloc, ids, ts)
}

func arrowColumns(rec arrow.Record) ([]int64, []int32, error) {
	schema := rec.Schema()
	idIdx := schema.FieldIndices(ColumnDetectorID)
	tsIdx := schema.FieldIndices(ColumnTimestamp)
	if len(idIdx) == 0 || len(tsIdx) == 0 {
		return nil, nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource,
			"arrow schema needs %s and %s columns", ColumnDetectorID, ColumnTimestamp)
	}

	idCol, ok := rec.Column(idIdx[0]).(*array.Int64)
	if !ok {
		return nil, nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "arrow column %s is %s, want int64",
			ColumnDetectorID, rec.Column(idIdx[0]).DataType())
	}
	tsCol, ok := rec.Column(tsIdx[0]).(*array.Int32)
	if !ok {
		return nil, nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "arrow column %s is %s, want int32",
			ColumnTimestamp, rec.Column(tsIdx[0]).DataType())
	}
	if idCol.NullN() > 0 || tsCol.NullN() > 0 {
		return nil, nil, nerrors.New(nerrors.ErrorTypeMalformedSource, "arrow event columns contain nulls")
	}
	return idCol.Int64Values(), tsCol.Int32Values(), nil
}

// ArrowSchema is the schema of .arrow sources.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColumnDetectorID, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColumnTimestamp, Type: arrow.PrimitiveTypes.Int32},
}, nil)
