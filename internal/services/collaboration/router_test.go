package collaboration

import (
	"errors"
	"sync"
	"testing"
	"time"

	"collabd/internal/models"
)

type recordingSink struct {
	mu  sync.Mutex
	ops []*models.EditOperation
	err error
}

func (s *recordingSink) Submit(op *models.EditOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ops = append(s.ops, op)
	return nil
}

func TestDispatch_EditIsVersionedBroadcastAndArchived(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDirectory(t, Options{Archive: sink})
	_, connA := connect(t, d, "a")
	_, connB := connect(t, d, "b")
	d.JoinDocument("a", "doc1")
	d.JoinDocument("b", "doc1")
	connA.reset()
	connB.reset()

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_EDIT","document_id":"doc1","edit_data":{"op":"insert","pos":0,"text":"hi"}}`))

	s := d.Session("doc1")
	if s.Version() != 1 || len(s.History()) != 1 {
		t.Fatalf("version = %d, history = %d", s.Version(), len(s.History()))
	}

	edits := connB.ofType(t, "DOCUMENT_EDIT")
	if len(edits) != 1 {
		t.Fatalf("b got %d edits, want 1", len(edits))
	}
	edit := edits[0]["edit"].(map[string]any)
	if edit["version"].(float64) != 0 || edit["user_id"] != "a" || edit["document_id"] != "doc1" {
		t.Errorf("edit = %v", edit)
	}
	if msgs := connA.messages(t); len(msgs) != 0 {
		t.Errorf("editor got %d messages, want 0", len(msgs))
	}

	if len(sink.ops) != 1 || sink.ops[0].Version != 0 {
		t.Errorf("archived ops = %v", sink.ops)
	}
}

func TestDispatch_ArchiveFailureDoesNotAffectEdit(t *testing.T) {
	sink := &recordingSink{err: errors.New("queue full")}
	d := newTestDirectory(t, Options{Archive: sink})
	connect(t, d, "a")
	d.JoinDocument("a", "doc1")

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_EDIT","document_id":"doc1","edit_data":[1,2,3]}`))

	if v := d.Session("doc1").Version(); v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestDispatch_EditOnUnknownDocumentIsSilent(t *testing.T) {
	d := newTestDirectory(t, Options{})
	_, connA := connect(t, d, "a")
	connect(t, d, "b")
	d.JoinDocument("b", "doc1")

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_EDIT","document_id":"nope","edit_data":{}}`))
	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_EDIT","document_id":"doc1","edit_data":{}}`))

	if msgs := connA.messages(t); len(msgs) != 0 {
		t.Errorf("lifecycle no-op reported %v", msgs)
	}
	if v := d.Session("doc1").Version(); v != 0 {
		t.Errorf("non-participant edit applied, version = %d", v)
	}
}

func TestDispatch_CursorExcludesSender(t *testing.T) {
	d := newTestDirectory(t, Options{})
	_, connA := connect(t, d, "a")
	_, connB := connect(t, d, "b")
	d.JoinDocument("a", "doc1")
	d.JoinDocument("b", "doc1")
	connA.reset()
	connB.reset()

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_CURSOR","document_id":"doc1","cursor_data":{"position":5,"is_typing":true}}`))

	cursors := connB.ofType(t, "DOCUMENT_CURSOR")
	if len(cursors) != 1 {
		t.Fatalf("b got %d cursor events, want 1", len(cursors))
	}
	if pos := cursors[0]["cursor_data"].(map[string]any)["position"].(float64); pos != 5 {
		t.Errorf("position = %v, want 5", pos)
	}
	if msgs := connA.messages(t); len(msgs) != 0 {
		t.Errorf("sender got %d messages, want 0", len(msgs))
	}
}

func TestDispatch_CursorAfterLeaveIsSilent(t *testing.T) {
	d := newTestDirectory(t, Options{})
	_, connA := connect(t, d, "a")
	_, connB := connect(t, d, "b")
	d.JoinDocument("a", "doc1")
	d.JoinDocument("b", "doc1")
	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_CLOSE","document_id":"doc1"}`))
	connA.reset()
	connB.reset()

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_CURSOR","document_id":"doc1","cursor_data":{"position":1}}`))

	if len(connA.messages(t)) != 0 || len(connB.messages(t)) != 0 {
		t.Error("cursor from a departed user produced traffic")
	}
}

func TestDispatch_HeartbeatEchoesToSenderOnly(t *testing.T) {
	d := newTestDirectory(t, Options{})
	a, connA := connect(t, d, "a")
	_, connB := connect(t, d, "b")
	d.JoinDocument("a", "doc1")
	d.JoinDocument("b", "doc1")
	connA.reset()
	connB.reset()
	setLastSeen(a, time.Now().Add(-time.Hour))

	d.Dispatch(ctx(), "a", []byte(`{"type":"HEARTBEAT","timestamp":1700000000000}`))

	beats := connA.ofType(t, "HEARTBEAT")
	if len(beats) != 1 {
		t.Fatalf("sender got %d heartbeats, want 1", len(beats))
	}
	if _, err := time.Parse(time.RFC3339Nano, beats[0]["timestamp"].(string)); err != nil {
		t.Errorf("heartbeat timestamp: %v", err)
	}
	if msgs := connB.messages(t); len(msgs) != 0 {
		t.Errorf("heartbeat leaked to b: %v", msgs)
	}
	if time.Since(a.LastSeen()) > time.Minute {
		t.Error("heartbeat did not touch the handle")
	}
}

func TestDispatch_MalformedReportsErrorToSenderOnly(t *testing.T) {
	frames := map[string]string{
		"unparseable":         `{not json`,
		"missing type":        `{"document_id":"doc1"}`,
		"open without doc":    `{"type":"DOCUMENT_OPEN"}`,
		"edit without data":   `{"type":"DOCUMENT_EDIT","document_id":"doc1"}`,
		"edit with null data": `{"type":"DOCUMENT_EDIT","document_id":"doc1","edit_data":null}`,
		"cursor without data": `{"type":"DOCUMENT_CURSOR","document_id":"doc1"}`,
		"heartbeat no stamp":  `{"type":"HEARTBEAT"}`,
		"edit with bad utf-8": "{\"type\":\"DOCUMENT_EDIT\",\"document_id\":\"doc1\",\"edit_data\":{\"text\":\"\xff\xfe\"}}",
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			d := newTestDirectory(t, Options{})
			_, connA := connect(t, d, "a")
			_, connB := connect(t, d, "b")
			d.JoinDocument("a", "doc1")
			d.JoinDocument("b", "doc1")
			connA.reset()
			connB.reset()

			d.Dispatch(ctx(), "a", []byte(frame))

			errs := connA.ofType(t, "ERROR")
			if len(errs) != 1 || errs[0]["error"] == "" {
				t.Fatalf("sender errors = %v, want 1", errs)
			}
			if msgs := connB.messages(t); len(msgs) != 0 {
				t.Errorf("error leaked to b: %v", msgs)
			}
			if v := d.Session("doc1").Version(); v != 0 {
				t.Errorf("malformed frame changed version to %d", v)
			}
			if d.Presence("a") == nil {
				t.Error("malformed frame disconnected the sender")
			}
		})
	}
}

func TestDispatch_UnknownTypeIsIgnored(t *testing.T) {
	d := newTestDirectory(t, Options{})
	_, connA := connect(t, d, "a")

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_DELETE","document_id":"doc1"}`))
	d.Dispatch(ctx(), "a", []byte(`{"type":"SYNC_RESPONSE","document_id":"doc1"}`))

	if msgs := connA.messages(t); len(msgs) != 0 {
		t.Errorf("unknown type produced %v", msgs)
	}
	if d.Presence("a") == nil {
		t.Error("unknown type disconnected the sender")
	}
}

func TestDispatch_FromDisconnectedUserIsDropped(t *testing.T) {
	d := newTestDirectory(t, Options{})
	d.Dispatch(ctx(), "ghost", []byte(`{"type":"DOCUMENT_OPEN","document_id":"doc1"}`))
	if d.Session("doc1") != nil {
		t.Error("frame from a disconnected user created a session")
	}
}

func TestDispatch_SupersededHandleFramesAreDropped(t *testing.T) {
	d := newTestDirectory(t, Options{})
	old, _ := connect(t, d, "a")
	connect(t, d, "a")

	d.dispatch(ctx(), old, []byte(`{"type":"DOCUMENT_OPEN","document_id":"doc1"}`))

	if d.Session("doc1") != nil {
		t.Error("frame from a superseded connection was applied")
	}
}

func TestDispatch_OpenAndClose(t *testing.T) {
	d := newTestDirectory(t, Options{})
	_, connA := connect(t, d, "a")

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_OPEN","document_id":"doc1"}`))

	syncs := connA.ofType(t, "SYNC_RESPONSE")
	if len(syncs) != 1 || syncs[0]["document_id"] != "doc1" {
		t.Fatalf("sync responses = %v", syncs)
	}
	if history := syncs[0]["edit_history"].([]any); len(history) != 0 {
		t.Errorf("edit history = %v, want empty", history)
	}

	d.Dispatch(ctx(), "a", []byte(`{"type":"DOCUMENT_CLOSE","document_id":"doc1"}`))
	if d.Session("doc1") != nil {
		t.Error("closing the last participant should delete the session")
	}
}
