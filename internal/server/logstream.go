package server

import (
	"encoding/json"
	"io"
	"strings"
)

// logLine carries one console log line to the dashboards.
type logLine struct {
	Type  string `json:"type"` // always "log"
	Level string `json:"level"`
	Line  string `json:"line"`
}

// LogWriter returns a writer that forwards each line written to it to every
// connected dashboard. Use it next to stderr:
//
//	log.SetOutput(io.MultiWriter(os.Stderr, srv.LogWriter()))
//
// Writes never block and never fail; slow clients miss lines.
func (s *Server) LogWriter() io.Writer {
	return logWriter{h: s.hub}
}

type logWriter struct {
	h *hub
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		msg, err := json.Marshal(logLine{Type: "log", Level: logLevel(line), Line: line})
		if err != nil {
			continue
		}
		w.h.broadcast(msg)
	}
	return len(p), nil
}

// logLevel classifies a line by the words the rest of the program uses for
// warnings and failures.
func logLevel(line string) string {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "error"), strings.Contains(l, "failed"):
		return "error"
	case strings.Contains(l, "warning"), strings.Contains(l, "timed out"):
		return "warn"
	}
	return "info"
}
