package services

import (
	"context"
	"fmt"
)

// Start launches the workers, the HTTP server and every enabled source.
// The server and sources run until bgCtx is cancelled.
func (m *Manager) Start(bgCtx context.Context) {
	if err := m.queue.Start(bgCtx); err != nil {
		m.logger.Error("Failed to start change queue", "error", err)
	}
	if err := m.controller.Start(bgCtx); err != nil {
		m.logger.Error("Failed to start export controller", "error", err)
	}

	if m.server != nil {
		m.background.Go(func() error {
			if err := m.server.Start(bgCtx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	for name, src := range m.sources {
		m.background.Go(func() error {
			m.logger.Info("Starting change source", "source", name)
			if err := src.Run(bgCtx); err != nil {
				return fmt.Errorf("%s source: %w", name, err)
			}
			return nil
		})
	}
}
