package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// sseWriter frames Server-Sent Events onto a flushing response. Every data
// event gets an increasing id so clients can tell gaps after a reconnect.
type sseWriter struct {
	w       *bufio.Writer
	flusher http.Flusher
	seq     uint64
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	return &sseWriter{w: bufio.NewWriter(w), flusher: flusher}
}

// event writes one event. Multi-line data is split into several data fields.
func (s *sseWriter) event(name, data string) error {
	s.seq++
	s.w.WriteString("id: " + strconv.FormatUint(s.seq, 10) + "\n")
	if name != "" {
		s.w.WriteString("event: " + name + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		s.w.WriteString("data: " + strings.TrimSuffix(line, "\r") + "\n")
	}
	s.w.WriteByte('\n')
	return s.flush()
}

// json writes v as the data of event name.
func (s *sseWriter) json(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	return s.event(name, string(data))
}

// comment writes a line clients ignore; proxies see traffic and keep the
// connection open.
func (s *sseWriter) comment(text string) error {
	s.w.WriteString(": " + text + "\n\n")
	return s.flush()
}

// retry sets the client reconnect delay in milliseconds.
func (s *sseWriter) retry(ms int) error {
	s.w.WriteString("retry: " + strconv.Itoa(ms) + "\n\n")
	return s.flush()
}

func (s *sseWriter) flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
