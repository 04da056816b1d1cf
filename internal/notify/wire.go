package notify

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/evaluate"
)

// fieldCleaner keeps a field from breaking the line framing.
var fieldCleaner = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// detailCleaner only replaces line breaks: the detail is the last field,
// so tabs in it survive decoding.
var detailCleaner = strings.NewReplacer("\r", " ", "\n", " ")

// FormatLine renders r as one passive-check line:
// host<TAB>sensor<TAB>status<TAB>detail.
func FormatLine(r evaluate.Result) string {
	return fieldCleaner.Replace(r.Hostname) + "\t" +
		fieldCleaner.Replace(r.Sensor) + "\t" +
		strconv.Itoa(int(r.Status)) + "\t" +
		detailCleaner.Replace(r.Detail)
}

// EncodeLines joins the lines of results with newlines. A non-empty
// payload always ends with a newline.
func EncodeLines(results []evaluate.Result) []byte {
	var b bytes.Buffer
	for _, r := range results {
		b.WriteString(FormatLine(r))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// DecodeLines parses a payload written by EncodeLines. Blank lines are
// skipped.
func DecodeLines(payload []byte) ([]evaluate.Result, error) {
	var out []evaluate.Result
	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.SplitN(text, "\t", 4)
		if len(fields) != 4 {
			return out, errors.New(errors.ErrParse,
				fmt.Sprintf("Line %d has %d fields, want 4", line, len(fields)), "")
		}
		status, err := strconv.Atoi(fields[2])
		if err != nil {
			return out, errors.WrapWithCode(err, errors.ErrParse,
				fmt.Sprintf("Line %d has a non-numeric status %q", line, fields[2]), "")
		}
		out = append(out, evaluate.Result{
			Hostname: fields[0],
			Sensor:   fields[1],
			Status:   evaluate.Status(status),
			Detail:   fields[3],
		})
	}
	if err := sc.Err(); err != nil {
		return out, errors.WrapWithCode(err, errors.ErrParse, "Couldn't read status lines", "")
	}
	return out, nil
}
