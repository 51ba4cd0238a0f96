package external

import (
	"context"
	"encoding/json"
	"log/slog"

	"recaps/internal/types"
)

// StubNotifier logs events instead of sending them. It is used when email
// is disabled and by local dry runs.
type StubNotifier struct {
	logger *slog.Logger
}

// NewStubNotifier returns a notifier that always succeeds.
func NewStubNotifier(logger *slog.Logger) *StubNotifier {
	return &StubNotifier{logger: logger}
}

func (s *StubNotifier) SendEvent(ctx context.Context, ev types.EmailEvent) (*types.EmailReceipt, error) {
	s.logger.InfoContext(ctx, "stub: email event not sent",
		"event", ev.EventName,
		"user_uuid", ev.UserID,
		"properties", ev.Properties,
	)
	raw, _ := json.Marshal(map[string]any{"success": true, "stub": true})
	return &types.EmailReceipt{Success: true, Raw: raw}, nil
}
