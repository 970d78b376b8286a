package sink

import (
	"io"
	"sync"

	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/output"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

// Stream writes every delta to w as one JSON line, in the webhook payload
// format.
type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logging.Logger
}

// NewStream returns a Stream writing to w.
func NewStream(w io.Writer, logger *logging.Logger) *Stream {
	return &Stream{w: w, logger: logger}
}

// RegisterResources implements resource.Installer.
func (s *Stream) RegisterResources(scheme string, resources []resource.Resource) {
	s.write(registerPayload(scheme, resources))
}

// UpdateResources implements resource.Installer.
func (s *Stream) UpdateResources(scheme string, toAdd []resource.Resource, toRemove []string) {
	s.write(updatePayload(scheme, toAdd, toRemove))
}

func (s *Stream) write(payload HookPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := output.JSONLine(s.w, payload); err != nil {
		s.logger.Warn("stream write failed", logging.Err(err))
	}
}
