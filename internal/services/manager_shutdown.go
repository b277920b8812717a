package services

import "context"

// Shutdown stops intake, drains the queue into the sink and then closes the
// connections. It is safe on a partially initialized manager.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			m.logger.Error("Error shutting down HTTP server", "error", err)
		}
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan error, 1)
	go func() {
		done <- m.background.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Error("Background task failed", "error", err)
		}
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	if m.controller != nil {
		if err := m.controller.Stop(ctx); err != nil {
			m.logger.Error("Error stopping export controller", "error", err)
		}
	}
	if m.queue != nil {
		if err := m.queue.Stop(ctx); err != nil {
			m.logger.Error("Error draining change queue", "error", err)
		}
	}

	if m.natsConn != nil {
		m.natsConn.Close()
	}
	if m.mongoClient != nil {
		if err := m.mongoClient.Disconnect(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("Error disconnecting from mongo", "error", err)
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.logger.Error("Error closing postgres", "error", err)
		}
	}
}
