package statsreport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/syncwave/syncwave/proto"
)

func TestHandleJSONReportsCurrentSnapshot(t *testing.T) {
	s := NewServer()
	snap := SnapshotFromNode("receiver", 42, proto.NodeStats{UptimeSeconds: 10, PID: 123})
	s.Update(snap)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleJSON(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SessionID != 42 || got.PID != 123 {
		t.Fatalf("got = %+v, want SessionID=42 PID=123", got)
	}
}

func TestWithReceiverStatsOnlySetsPresentFields(t *testing.T) {
	var rs proto.ReceiverStats
	rs.SetAudioLatency(0.01)

	snap := WithReceiverStats(Snapshot{}, "sync", rs)
	if snap.AudioLatency == nil || *snap.AudioLatency != 0.01 {
		t.Fatal("expected AudioLatency to be set")
	}
	if snap.BufferLength != nil {
		t.Fatal("expected BufferLength to remain nil")
	}
}
