package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vcto/mcp-progress/internal/longrunning"
)

// Recorder is a longrunning.Session that journals every notification it
// forwards. Journal failures are logged and never reach the tracker.
type Recorder struct {
	next      longrunning.Session
	storage   Storage
	sessionID func(context.Context) string
	now       func() time.Time
}

// NewRecorder wraps next so that notifications are written to storage.
func NewRecorder(next longrunning.Session, storage Storage) *Recorder {
	return &Recorder{
		next:      next,
		storage:   storage,
		sessionID: sessionIDFromContext,
		now:       time.Now,
	}
}

// SendProgressNotification implements longrunning.Session.
func (r *Recorder) SendProgressNotification(ctx context.Context, token mcp.ProgressToken, progress float64, total *float64) error {
	sendErr := r.next.SendProgressNotification(ctx, token, progress, total)

	record := Record{
		ID:        uuid.New().String(),
		SessionID: r.sessionID(ctx),
		Token:     fmt.Sprintf("%v", token),
		Progress:  progress,
		Total:     total,
		SentAt:    r.now(),
	}
	if sendErr != nil {
		record.Error = sendErr.Error()
	}
	if err := r.storage.Append(ctx, record); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("token", record.Token).Msg("Failed to journal progress notification")
	}

	return sendErr
}

func sessionIDFromContext(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}

// StartRetention deletes records older than maxAge every interval until ctx
// is done. The returned channel is closed once the loop has stopped.
func StartRetention(ctx context.Context, storage Storage, maxAge, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	logger := zerolog.Ctx(ctx)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := storage.CleanupOldRecords(ctx, maxAge)
				if err != nil {
					logger.Error().Err(err).Msg("Journal cleanup failed")
					continue
				}
				if n > 0 {
					logger.Info().Int64("deleted", n).Msg("Cleaned up old journal records")
				}
			}
		}
	}()

	return done
}

var _ longrunning.Session = (*Recorder)(nil)
