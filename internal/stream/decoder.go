// Package stream decodes the newline-delimited JSON answer stream into
// typed events.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"lumen-backend/internal/model"
	"lumen-backend/pkg/logger"
)

// Decoder turns a raw byte stream of newline-delimited JSON records into an
// ordered sequence of StreamEvent values. Chunk boundaries in the underlying
// reader are invisible to callers: a line split across reads is buffered
// until its newline arrives, and a trailing line without a final newline is
// still parsed at end of input. Each Decoder owns its buffer, so a fresh
// Decoder per stream is cheap and carries no state between streams.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: s}
}

// Next returns the next decoded event in stream order. Lines that fail to
// parse are logged and skipped; they never abort the stream. Next returns
// io.EOF once the input is exhausted, or the underlying read error.
func (d *Decoder) Next() (model.StreamEvent, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var event model.StreamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Warnf("Dropping malformed stream line: %v", err)
			continue
		}

		return event, nil
	}

	if err := d.scanner.Err(); err != nil {
		return model.StreamEvent{}, err
	}

	return model.StreamEvent{}, io.EOF
}
