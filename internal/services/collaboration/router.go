package collaboration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"collabd/internal/middleware"
	"collabd/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// Dispatch routes one inbound frame from userID. Frames from users that are
// no longer connected are dropped.
func (d *Directory) Dispatch(ctx context.Context, userID string, frame []byte) {
	p := d.Presence(userID)
	if p == nil {
		return
	}
	d.dispatch(ctx, p, frame)
}

// dispatch handles a frame read from p's own connection. Protocol errors go
// back to p only; a panic in a handler is contained to this frame.
func (d *Directory) dispatch(ctx context.Context, p *Presence, frame []byte) {
	ctx, span := middleware.StartSpan(ctx, "Directory.Dispatch",
		attribute.String("user.id", p.UserID),
		attribute.String("session.id", p.SessionID),
		attribute.Int("message.size", len(frame)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Printf("PANIC dispatching frame from user %s: %v\n%s", p.UserID, r, debug.Stack())
			middleware.AddSpanError(ctx, err)
			p.send(models.Encode(models.ErrorMessage{
				Type:  models.MessageTypeError,
				Error: "internal error",
			}))
		}
	}()

	if d.Presence(p.UserID) != p {
		return
	}
	p.Touch()

	cmd, err := ParseCommand(frame)
	if err != nil {
		var perr *ProtocolError
		switch {
		case errors.As(err, &perr):
			middleware.AddSpanError(ctx, err)
			p.send(models.Encode(models.ErrorMessage{
				Type:    models.MessageTypeError,
				Error:   perr.Reason,
				Details: perr.Details,
			}))
		case errors.Is(err, ErrUnknownMessageType):
			log.Printf("  Ignoring message from user %s: %v", p.UserID, err)
		default:
			log.Printf("⚠️  Unexpected parse error from user %s: %v", p.UserID, err)
		}
		return
	}

	switch c := cmd.(type) {
	case JoinCommand:
		span.SetAttributes(attribute.String("message.type", string(models.MessageTypeDocumentOpen)),
			attribute.String("document.id", c.DocumentID))
		d.handleJoin(p, c)
	case LeaveCommand:
		span.SetAttributes(attribute.String("message.type", string(models.MessageTypeDocumentClose)),
			attribute.String("document.id", c.DocumentID))
		d.LeaveDocument(p.UserID, c.DocumentID)
	case EditCommand:
		span.SetAttributes(attribute.String("message.type", string(models.MessageTypeDocumentEdit)),
			attribute.String("document.id", c.DocumentID))
		d.handleEdit(ctx, p, c)
	case CursorCommand:
		span.SetAttributes(attribute.String("message.type", string(models.MessageTypeDocumentCursor)),
			attribute.String("document.id", c.DocumentID))
		if s := d.Session(c.DocumentID); s != nil {
			s.UpdateCursor(p.UserID, c.Cursor)
		}
	case HeartbeatCommand:
		span.SetAttributes(attribute.String("message.type", string(models.MessageTypeHeartbeat)))
		p.send(models.Encode(models.HeartbeatMessage{
			Type:      models.MessageTypeHeartbeat,
			Timestamp: time.Now().UTC(),
		}))
	default:
		panic(fmt.Sprintf("unhandled command %T", cmd))
	}
}

func (d *Directory) handleJoin(p *Presence, c JoinCommand) {
	s, err := d.JoinDocument(p.UserID, c.DocumentID)
	if err != nil {
		// Disconnected between the handle check and the join.
		log.Printf("  Join of document %s by user %s dropped: %v", c.DocumentID, p.UserID, err)
		return
	}
	p.send(models.Encode(s.SyncResponse(d.opts.SyncHistoryLimit)))
}

func (d *Directory) handleEdit(ctx context.Context, p *Presence, c EditCommand) {
	s := d.Session(c.DocumentID)
	if s == nil {
		return
	}

	op, err := s.ApplyEdit(p.UserID, c.Payload)
	if err != nil {
		// Edit raced with a leave; nothing to report.
		return
	}

	middleware.AddSpanEvent(ctx, "edit.applied", attribute.Int64("edit.version", op.Version))

	if d.opts.Archive != nil {
		if err := d.opts.Archive.Submit(op); err != nil {
			log.Printf("⚠️  Edit %s on document %s not archived: %v", op.ID, op.DocumentID, err)
		}
	}
}
