// Package ingest reads NDJSON document feeds into validated records.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"topicidx/config"
	"topicidx/internal/domain"
	"topicidx/internal/port"
)

const maxLineBytes = 16 << 20

// errSkip marks a malformed record.
var errSkip = errors.New("malformed record")

type line struct {
	ID       any            `json:"id"`
	Text     string         `json:"text"`
	ParentID any            `json:"parent_id"`
	Metadata map[string]any `json:"metadata"`
}

// Reader streams records from NDJSON files.
type Reader struct {
	files  []string
	fields []config.Field
	logger *slog.Logger
}

var _ port.RecordReader = (*Reader)(nil)

// NewReader creates a Reader over files, validating against fields.
func NewReader(files []string, fields []config.Field, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{files: files, fields: fields, logger: logger}
}

// Read calls fn for every valid record in file order. Malformed lines and
// repeated ids are skipped and counted. An error from fn stops the read.
func (r *Reader) Read(fn func(domain.IngestRecord) error) (port.ReadStats, error) {
	var stats port.ReadStats
	seen := make(map[string]bool)

	for _, path := range r.files {
		if err := r.readFile(path, seen, &stats, fn); err != nil {
			return stats, err
		}
		stats.Files++
	}

	r.logger.Info("ingest_read_completed",
		slog.Int("files", stats.Files),
		slog.Int("lines", stats.Lines),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

func (r *Reader) readFile(path string, seen map[string]bool, stats *port.ReadStats, fn func(domain.IngestRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.Lines++

		rec, err := r.Parse([]byte(raw))
		if err == nil && seen[rec.ID] {
			err = fmt.Errorf("%w: duplicate id %q", errSkip, rec.ID)
		}
		if err != nil {
			stats.Skipped++
			r.logger.Warn("ingest_record_skipped",
				slog.String("file", path),
				slog.Int("line", lineNo),
				slog.String("reason", err.Error()))
			continue
		}
		seen[rec.ID] = true

		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// Parse validates one NDJSON line.
func (r *Reader) Parse(data []byte) (domain.IngestRecord, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return domain.IngestRecord{}, fmt.Errorf("%w: %v", errSkip, err)
	}

	id, ok := scalarString(l.ID)
	if !ok || strings.TrimSpace(id) == "" {
		return domain.IngestRecord{}, fmt.Errorf("%w: missing id", errSkip)
	}
	parent, _ := scalarString(l.ParentID)

	rec := domain.IngestRecord{
		ID:       id,
		Text:     l.Text,
		ParentID: parent,
		Values:   make(map[string]any, len(r.fields)),
	}

	for _, f := range r.fields {
		v, present := lookup(l.Metadata, f.Name)
		if !present || v == nil {
			if !f.Optional {
				return domain.IngestRecord{}, fmt.Errorf("%w: missing field %q", errSkip, f.Name)
			}
			continue
		}
		converted, err := convert(v, f.Type)
		if err != nil {
			return domain.IngestRecord{}, fmt.Errorf("%w: field %q: %v", errSkip, f.Name, err)
		}
		rec.Values[f.Name] = converted
	}
	return rec, nil
}

// lookup matches a field name against metadata keys case-insensitively.
func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func convert(v any, typ string) (any, error) {
	switch strings.ToUpper(typ) {
	case "INTEGER":
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("not a finite number")
		}
		return int64(f), nil
	case "REAL":
		return toFloat(v)
	default:
		s, ok := scalarString(v)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	}
}

// toFloat parses float-then-int so "2001.0" and 2001 both yield 2001.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable number %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
