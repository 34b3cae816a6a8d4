package utils

import (
	"encoding/json"
	"net/http"
)

// StreamWriter writes newline-delimited JSON records to an HTTP response,
// flushing after every record so clients see fragments as they are produced.
type StreamWriter struct {
	w http.ResponseWriter
}

func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &StreamWriter{w: w}
}

func (s *StreamWriter) Write(record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}
