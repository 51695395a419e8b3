// Package events appends lifecycle events to the audit log, inside the same
// transaction as the mutation they record.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type Writer struct {
	Now func() time.Time
}

const (
	TypeUserRegistered       = "user.registered"
	TypeContractCreated      = "contract.created"
	TypeContractActivated    = "contract.activated"
	TypeContractCompleted    = "contract.completed"
	TypeContractDeleted      = "contract.deleted"
	TypeConditionCompleted   = "condition.completed"
	TypeCounterpartCompleted = "counterpart.completed"
	TypeInvitationSent       = "invitation.sent"
	TypeInvitationResponded  = "invitation.responded"
)

// Append records one event. Payload must be JSON-marshalable; nil payload is
// stored as an empty object.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, contractID, entityKind, entityID, actorID string, payload any) error {
	raw := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,contract_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(contractID), entityKind, nullable(entityID), actorID, string(raw))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
