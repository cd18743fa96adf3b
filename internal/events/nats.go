package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the subject root used by NATSBridge.
const DefaultSubjectPrefix = "scorekeep"

// NATSBridge republishes notifications to NATS so that processes outside
// the workspace can follow project changes.
//
// Events are published to subjects:
//   - {prefix}.projects.{project_id}.reload_project_content
//   - {prefix}.projects.{project_id}.change_project_beat_range
//   - {prefix}.projects.{project_id}.change_view_beat_range
//   - ...
//
// Publishing is best effort. Failures are logged and never reach the
// workspace.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSBridge wraps an established connection.
func NewNATSBridge(nc *nats.Conn, prefix string, logger *zap.Logger) (*NATSBridge, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBridge{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject an event is published to.
func (b *NATSBridge) Subject(e Event) string {
	id := e.ProjectID
	if id == "" {
		id = "_"
	}
	// '.' and wildcards would split or widen the subject.
	id = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
	return fmt.Sprintf("%s.projects.%s.%s", b.prefix, id, e.Kind)
}

// Notify implements Observer.
func (b *NATSBridge) Notify(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("marshal project event", zap.Error(err))
		return
	}
	subject := b.Subject(e)
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Warn("publish project event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
