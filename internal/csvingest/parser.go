// Package csvingest streams a user-supplied CSV export into ParsedSighting
// values under bounded memory, size, and row-count limits. Encoding is
// liberal (UTF-8 preferred, Windows-1252 fallback); structure is strict
// (column count, record size, row count).
package csvingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/models"
)

const (
	MaxColumns     = 256
	MaxRecordBytes = 8 * 1024
	MaxTotalBytes  = 50 * 1024 * 1024
	MaxRows        = 250_000
)

// Stats summarises what happened during a parse, for logging and for the
// caller to decide whether to proceed despite skipped rows.
type Stats struct {
	RowsAccepted int
	RowsSkipped  int
}

// Parse reads header + data rows from r, invoking emit for every row that
// survives per-row validation. Structural violations (too many columns, a
// record over MaxRecordBytes, more than MaxRows data rows, undecodable
// bytes) abort the whole upload with a BadRequest. logger receives
// per-row warnings (bad year prefix, encoding fallback) that do not abort.
func Parse(r io.Reader, logger *slog.Logger, emit func(models.ParsedSighting) error) (Stats, error) {
	limited := &io.LimitedReader{R: r, N: MaxTotalBytes + 1}
	buffered := bufio.NewReaderSize(limited, 64*1024)

	headerLine, err := readLine(buffered)
	if err != nil {
		return Stats{}, apperror.BadRequestf(err, "failed to read CSV header")
	}
	if limited.N <= 0 {
		return Stats{}, apperror.BadRequest("upload exceeds maximum size of 50 MiB")
	}

	header, err := parseRecord(headerLine)
	if err != nil {
		return Stats{}, apperror.BadRequestf(err, "malformed CSV header")
	}
	if len(header) > MaxColumns {
		return Stats{}, apperror.BadRequest(fmt.Sprintf("header has %d columns, maximum is %d", len(header), MaxColumns))
	}

	cm, missing := NewColumnMap(header)
	if len(missing) > 0 {
		return Stats{}, apperror.BadRequest(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	var stats Stats
	rowNumber := 1
	for {
		line, readErr := readLine(buffered)
		atEOF := readErr == io.EOF
		if atEOF && len(line) == 0 {
			break
		}
		if readErr != nil && !atEOF {
			return stats, apperror.BadRequestf(readErr, "failed reading CSV body")
		}
		if limited.N <= 0 {
			return stats, apperror.BadRequest("upload exceeds maximum size of 50 MiB")
		}
		rowNumber++

		if len(line) > MaxRecordBytes {
			return stats, apperror.BadRequest(fmt.Sprintf("row %d exceeds maximum record size of %d bytes", rowNumber, MaxRecordBytes))
		}

		decoded, fellBack, decErr := decodeLine(line)
		if decErr != nil {
			return stats, apperror.BadRequest(fmt.Sprintf("row %d: could not decode as UTF-8 or Windows-1252", rowNumber))
		}
		if fellBack && logger != nil {
			logger.Warn("csv row fell back to windows-1252 decoding", "row", rowNumber)
		}

		fields, parseErr := parseRecord(decoded)
		if parseErr != nil {
			stats.RowsSkipped++
			if atEOF {
				break
			}
			continue
		}
		if len(fields) > MaxColumns {
			return stats, apperror.BadRequest(fmt.Sprintf("row %d has %d columns, maximum is %d", rowNumber, len(fields), MaxColumns))
		}

		if stats.RowsAccepted >= MaxRows {
			return stats, apperror.BadRequest(fmt.Sprintf("upload exceeds maximum of %d rows", MaxRows))
		}

		sighting, ok := buildRow(cm, fields, rowNumber, logger)
		if !ok {
			stats.RowsSkipped++
		} else {
			if err := emit(sighting); err != nil {
				return stats, err
			}
			stats.RowsAccepted++
		}

		if atEOF {
			break
		}
	}

	return stats, nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	line = trimNewline(line)
	if len(line) == 0 && err != nil {
		return nil, err
	}
	return line, err
}

func trimNewline(line []byte) []byte {
	line = trimByteSuffix(line, '\n')
	line = trimByteSuffix(line, '\r')
	return line
}

func trimByteSuffix(b []byte, c byte) []byte {
	if len(b) > 0 && b[len(b)-1] == c {
		return b[:len(b)-1]
	}
	return b
}

func decodeLine(line []byte) (string, bool, error) {
	if utf8.Valid(line) {
		return string(line), false, nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(line)
	if err != nil {
		return "", true, err
	}
	return string(decoded), true, nil
}

func parseRecord(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	record, err := reader.Read()
	if err != nil {
		return nil, err
	}
	return record, nil
}

func buildRow(cm ColumnMap, fields []string, rowNumber int, logger *slog.Logger) (models.ParsedSighting, bool) {
	get := func(idx int) string {
		if idx < 0 || idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}

	sightingID := get(cm.SightingID)
	date := get(cm.Date)
	lonRaw := get(cm.Longitude)
	latRaw := get(cm.Latitude)
	commonName := get(cm.CommonName)

	if sightingID == "" || date == "" || lonRaw == "" || latRaw == "" || commonName == "" {
		return models.ParsedSighting{}, false
	}

	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return models.ParsedSighting{}, false
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return models.ParsedSighting{}, false
	}

	count := 1
	if raw := get(cm.Count); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			count = n
		}
	}

	return models.ParsedSighting{
		SightingUUID:   sightingID,
		ObservedAt:     date,
		Longitude:      lon,
		Latitude:       lat,
		CommonName:     commonName,
		ScientificName: get(cm.ScientificName),
		Count:          count,
		Notes:          optional(get(cm.Notes)),
		TripName:       optional(get(cm.TripName)),
		RowNumber:      rowNumber,
	}, true
}

// optional turns an empty trimmed field into a nil pointer so it stores as
// SQL NULL rather than an empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ExtractYear parses the first four characters of an ISO-8601-ish timestamp
// into a year; returns 0 and logs a warning on failure, per policy — the
// sentinel is preserved verbatim downstream, never coerced to null.
func ExtractYear(observedAt string, rowNumber int, logger *slog.Logger) int {
	if len(observedAt) < 4 {
		warnBadYear(logger, rowNumber, observedAt)
		return 0
	}
	year, err := strconv.Atoi(observedAt[:4])
	if err != nil {
		warnBadYear(logger, rowNumber, observedAt)
		return 0
	}
	return year
}

func warnBadYear(logger *slog.Logger, rowNumber int, observedAt string) {
	if logger != nil {
		logger.Warn("unparsable year prefix, defaulting to 0", "row", rowNumber, "observed_at", observedAt)
	}
}
