package devserver

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// FailNext makes the next n requests to path answer with status.
func (s *Server) FailNext(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults[path] = append(s.faults[path], status)
	}
}

// Calls returns how many requests reached path, injected failures included.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) countCalls(c *fiber.Ctx) error {
	// c.Path is only valid inside the handler
	path := utils.CopyString(c.Path())
	s.mu.Lock()
	s.calls[path]++
	s.mu.Unlock()
	return c.Next()
}

func (s *Server) injectFaults(c *fiber.Ctx) error {
	path := utils.CopyString(c.Path())
	s.mu.Lock()
	queue := s.faults[path]
	if len(queue) == 0 {
		s.mu.Unlock()
		return c.Next()
	}
	status := queue[0]
	s.faults[path] = queue[1:]
	s.mu.Unlock()

	s.cfg.Logger.Debug("injecting failure", "path", path, "status", status)
	return writeError(c, status, "injected failure", nil)
}
