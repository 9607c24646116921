package session

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/db/controller/authevent"
	"github.com/adminshell/adminshell/internal/db/models"
	authsession "github.com/adminshell/adminshell/internal/session"
)

// AuditSink returns an event sink writing the events of browser sessionID to
// the auth_events table. Skipped attempts are not recorded.
func AuditSink(db *gorm.DB, sessionID string) authsession.EventSink {
	return authsession.EventSinkFunc(func(_ context.Context, ev authsession.Event) {
		if ev.Outcome == authsession.OutcomeSkipped {
			return
		}

		err := authevent.Record(db, &models.AuthEvent{
			SessionID: sessionID,
			Kind:      ev.Op,
			Outcome:   ev.Outcome,
			Subject:   ev.Subject,
			Detail:    ev.Detail,
		})
		if err != nil {
			log.Error().Err(err).Str("op", ev.Op).Msg("failed to record auth event")
		}
	})
}
