package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bdougie/framesort/internal/models"
)

const (
	// ResultFile holds every classified frame of a video.
	ResultFile = "result.csv"
	// MatchFile holds the frames whose tags mention the object.
	MatchFile = "result_fish.csv"
)

// ErrNoTable is returned by ReadTable when the file does not exist.
var ErrNoTable = errors.New("result table does not exist")

// The leading unnamed column is the row index, as in the tables produced by
// earlier versions of the pipeline.
var tableHeader = []string{"", "frame", "tags", "text", "imagepath", "confidence"}

// TableExists reports whether a result table is present at path.
func TableExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteTable writes records to path. The file is written to a temporary name
// first and renamed, so an interrupted run never leaves a truncated table.
func WriteTable(path string, records []models.FrameRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create result table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeTable(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write result table %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close result table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename result table: %w", err)
	}
	return nil
}

func encodeTable(w io.Writer, records []models.FrameRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for i, rec := range records {
		if c := rec.Confidence; c != nil && !validConfidence(*c) {
			return fmt.Errorf("frame %d: confidence %v out of range [0,1]", rec.Frame, *c)
		}
		row := []string{
			strconv.Itoa(i),
			fmt.Sprintf("%04d", rec.Frame),
			rec.Tags,
			rec.Text,
			rec.ImagePath,
			formatConfidence(rec.Confidence),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable loads a result table. Columns are located by header name, so
// tables with extra columns still load.
func ReadTable(path string) ([]models.FrameRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoTable, path)
		}
		return nil, fmt.Errorf("open result table: %w", err)
	}
	defer f.Close()

	records, err := decodeTable(f)
	if err != nil {
		return nil, fmt.Errorf("read result table %s: %w", path, err)
	}
	return records, nil
}

func decodeTable(r io.Reader) ([]models.FrameRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"frame", "tags", "confidence"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []models.FrameRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		frame, err := strconv.Atoi(strings.TrimSpace(field(row, "frame")))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame %q", line, field(row, "frame"))
		}
		conf, err := parseConfidence(field(row, "confidence"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		records = append(records, models.FrameRecord{
			Frame:      frame,
			Tags:       field(row, "tags"),
			Text:       field(row, "text"),
			ImagePath:  field(row, "imagepath"),
			Confidence: conf,
		})
	}
	return records, nil
}

// FilterTags keeps the records whose tags contain object as a substring.
func FilterTags(records []models.FrameRecord, object string) []models.FrameRecord {
	var matches []models.FrameRecord
	for _, rec := range records {
		if strings.Contains(rec.Tags, object) {
			matches = append(matches, rec)
		}
	}
	return matches
}

func formatConfidence(c *float64) string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(*c, 'f', -1, 64)
}

func parseConfidence(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil, fmt.Errorf("invalid confidence %q", s)
	}
	if !validConfidence(v) {
		return nil, fmt.Errorf("confidence %q out of range [0,1]", s)
	}
	return &v, nil
}

func validConfidence(v float64) bool {
	return v >= 0 && v <= 1
}
