package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/spkg/bom"

	"tidbyt.dev/findbus/storage"
)

// Names of the four datasets.
const (
	DatasetStops     = "stops"
	DatasetRoutes    = "routes"
	DatasetTrips     = "trips"
	DatasetStopTimes = "stop_times"
)

// Raw contents of the four datasets making up a feed. Each may be a
// JSON array of objects or a GTFS style CSV file.
type Datasets struct {
	Stops     []byte
	Routes    []byte
	Trips     []byte
	StopTimes []byte
}

// DatasetError identifies which dataset failed to parse.
type DatasetError struct {
	Dataset string
	Err     error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Dataset, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

type Format int

const (
	FormatCSV Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "csv"
}

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// DetectFormat guesses the format of a dataset. JSON datasets are
// arrays, so anything starting with '[' is JSON.
func DetectFormat(buf []byte) Format {
	trimmed := bytes.TrimSpace(bom.Clean(buf))
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return FormatJSON
	}
	return FormatCSV
}

// ParseStatic parses all four datasets into writer, in the order the
// index builder depends on: stops, routes, trips, stop_times. Errors
// are *DatasetError, and abort the writer so that the feed's previous
// records are kept.
func ParseStatic(writer storage.FeedWriter, data Datasets) error {
	err := parseStatic(writer, data)
	if err != nil {
		if abortErr := writer.Abort(); abortErr != nil {
			log.Warn().Err(abortErr).Msg("Aborting feed writer")
		}
		return err
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("closing feed writer: %w", err)
	}

	return nil
}

func parseStatic(writer storage.FeedWriter, data Datasets) error {
	if _, err := ParseStops(writer, data.Stops); err != nil {
		return &DatasetError{Dataset: DatasetStops, Err: err}
	}

	if _, err := ParseRoutes(writer, data.Routes); err != nil {
		return &DatasetError{Dataset: DatasetRoutes, Err: err}
	}

	err := writer.BeginTrips()
	if err != nil {
		return &DatasetError{Dataset: DatasetTrips, Err: fmt.Errorf("beginning trips: %w", err)}
	}
	if _, err := ParseTrips(writer, data.Trips); err != nil {
		return &DatasetError{Dataset: DatasetTrips, Err: err}
	}
	err = writer.EndTrips()
	if err != nil {
		return &DatasetError{Dataset: DatasetTrips, Err: fmt.Errorf("ending trips: %w", err)}
	}

	err = writer.BeginStopTimes()
	if err != nil {
		return &DatasetError{Dataset: DatasetStopTimes, Err: fmt.Errorf("beginning stop_times: %w", err)}
	}
	if _, err := ParseStopTimes(writer, data.StopTimes); err != nil {
		return &DatasetError{Dataset: DatasetStopTimes, Err: err}
	}
	err = writer.EndStopTimes()
	if err != nil {
		return &DatasetError{Dataset: DatasetStopTimes, Err: fmt.Errorf("ending stop_times: %w", err)}
	}

	return nil
}

// Decodes every record in buf, calling cb for each. Empty input
// holds no records. CSV input must have idColumn in its header, so
// that e.g. an HTML error page isn't mistaken for an empty dataset.
func decode[T any](buf []byte, idColumn string, cb func(row int, record *T) error) error {
	buf = bom.Clean(buf)
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' {
		return fmt.Errorf("expected a JSON array, found an object")
	}

	if DetectFormat(buf) == FormatJSON {
		records := []*T{}
		if err := json.Unmarshal(buf, &records); err != nil {
			return fmt.Errorf("unmarshaling json: %w", err)
		}
		for i, r := range records {
			if r == nil {
				continue
			}
			if err := cb(i+1, r); err != nil {
				return err
			}
		}
		return nil
	}

	err := checkHeader(trimmed, idColumn)
	if err != nil {
		return err
	}

	i := 0
	err = gocsv.UnmarshalToCallbackWithError(bytes.NewReader(buf), func(r *T) error {
		i += 1
		return cb(i, r)
	})
	if err != nil {
		return fmt.Errorf("unmarshaling csv: %w", err)
	}
	return nil
}

func checkHeader(buf []byte, column string) error {
	header := buf
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		header = buf[:i]
	}
	for _, name := range strings.Split(string(header), ",") {
		if strings.Trim(strings.TrimSpace(name), `"`) == column {
			return nil
		}
	}
	return fmt.Errorf("csv header lacks %s column", column)
}

// Tracks rows dropped while parsing a dataset, and logs a summary.
type skipped struct {
	dataset string
	count   int
	first   string
}

func (s *skipped) add(format string, args ...interface{}) {
	s.count++
	if s.first == "" {
		s.first = fmt.Sprintf(format, args...)
	}
}

func (s *skipped) log() {
	if s.count == 0 {
		return
	}
	log.Warn().
		Str("dataset", s.dataset).
		Int("skipped", s.count).
		Str("first", s.first).
		Msg("Dropped malformed rows")
}

// Field holds a dataset value that may have been given as a string or
// a number, e.g. stop_sequence: 3 vs stop_sequence: "3".
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = Field(str)
		return nil
	}
	*f = Field(s)
	return nil
}

func (f *Field) UnmarshalCSV(s string) error {
	*f = Field(s)
	return nil
}

func (f Field) String() string {
	return strings.TrimSpace(string(f))
}
