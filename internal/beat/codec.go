// SPDX-License-Identifier: MIT
package beat

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyCSV is returned when a CSV document has no header row.
var ErrEmptyCSV = errors.New("csv: no rows")

// RowError describes a rejected import row. Row is 1-based and counts data
// rows only.
type RowError struct {
	Row    int
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("import: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("import: row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// exportRow is the interchange shape shared by JSON and CSV.
type exportRow struct {
	Time     float64 `json:"time"`
	Sound    string  `json:"sound"`
	Velocity float64 `json:"velocity"`
}

// ExportJSON renders notes as an indented JSON array of {time, sound, velocity}.
// Ids are not exported.
func ExportJSON(notes []Note) ([]byte, error) {
	rows := make([]exportRow, len(notes))
	for i, n := range notes {
		rows[i] = exportRow{
			Time:     Round(n.Time, 4),
			Sound:    n.Sound.String(),
			Velocity: Round(n.Velocity, 3),
		}
	}
	return json.MarshalIndent(rows, "", "  ")
}

// ExportCSV renders notes as "time,sound,velocity" rows with a header line.
func ExportCSV(notes []Note) string {
	var b strings.Builder
	b.WriteString("time,sound,velocity")
	for _, n := range notes {
		fmt.Fprintf(&b, "\n%.4f,%s,%.3f", n.Time, n.Sound, n.Velocity)
	}
	return b.String()
}

// rawRow holds unvalidated field text; nil means the field was absent.
type rawRow struct {
	time, sound, velocity *string
}

// ImportJSON parses an array of {time, sound, velocity} objects. Numbers may
// be given as JSON numbers or numeric strings.
func ImportJSON(data []byte) ([]Note, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &RowError{Field: "document", Reason: "must be a JSON array of objects"}
		}
		return nil, fmt.Errorf("import: malformed JSON: %w", err)
	}

	notes := make([]Note, 0, len(items))
	for i, item := range items {
		row := rawRow{
			time:     jsonField(item["time"]),
			sound:    jsonField(item["sound"]),
			velocity: jsonField(item["velocity"]),
		}
		n, err := row.note(i + 1)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// jsonField flattens a scalar JSON value to text; null and missing become nil.
func jsonField(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	s = string(raw)
	return &s
}

// ImportCSV parses CSV text with a header containing at least "time" and
// "sound" columns; "velocity" is optional. Blank lines are skipped.
func ImportCSV(text string) ([]Note, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("import: malformed CSV: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"time", "sound"} {
		if _, ok := cols[required]; !ok {
			return nil, &RowError{Field: required, Reason: "missing column"}
		}
	}

	var notes []Note
	for row := 1; ; row++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("import: malformed CSV: %w", err)
		}
		n, err := csvRow(record, cols).note(row)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func csvRow(record []string, cols map[string]int) rawRow {
	get := func(name string) *string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return nil
		}
		v := strings.TrimSpace(record[i])
		return &v
	}
	return rawRow{time: get("time"), sound: get("sound"), velocity: get("velocity")}
}

func (r rawRow) note(row int) (Note, error) {
	if r.time == nil || *r.time == "" {
		return Note{}, &RowError{Row: row, Field: "time", Reason: "missing"}
	}
	if r.sound == nil || *r.sound == "" {
		return Note{}, &RowError{Row: row, Field: "sound", Reason: "missing"}
	}

	t, err := strconv.ParseFloat(*r.time, 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return Note{}, &RowError{Row: row, Field: "time", Reason: "not a number"}
	}
	if t < 0 {
		return Note{}, &RowError{Row: row, Field: "time", Reason: "must be >= 0"}
	}

	sound, err := ParseSound(*r.sound)
	if err != nil {
		return Note{}, &RowError{Row: row, Field: "sound", Reason: fmt.Sprintf("unknown value %q", *r.sound)}
	}

	velocity := DefaultVelocity
	if r.velocity != nil && *r.velocity != "" {
		velocity, err = strconv.ParseFloat(*r.velocity, 64)
		if err != nil || math.IsNaN(velocity) {
			return Note{}, &RowError{Row: row, Field: "velocity", Reason: "not a number"}
		}
		if velocity < 0 || velocity > 1 {
			return Note{}, &RowError{Row: row, Field: "velocity", Reason: "must be within 0.0-1.0"}
		}
	}

	return Note{ID: uuid.NewString(), Time: t, Sound: sound, Velocity: velocity}, nil
}
