package hub

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/model"
	"github.com/ZehenForever/sto-log-parser/internal/parse"
)

const aliceID = "P[100@200 Alice@alice]"

var testLines = []string{
	"24:01:15:20:00:00.0::Alice,P[100@200 Alice@alice],,*,Borg Probe,C[20 Space_Borg_Probe],Phaser Array,Pn.Phaser_Array,Phaser,Critical,100,100",
	"24:01:15:20:00:02.0::Alice,P[100@200 Alice@alice],Fighter Squadron,C[77 Pet_Fighter],Borg Probe,C[20 Space_Borg_Probe],Fighter Cannon,Pet.Cannon,Phaser,,40,40",
	"24:01:15:20:00:03.0::Borg Probe,C[20 Space_Borg_Probe],,*,Alice,P[100@200 Alice@alice],Cutting Beam,Borg.Cutting_Beam,Plasma,,30,30",
	"24:01:15:20:00:09.0::Alice,P[100@200 Alice@alice],,*,Borg Probe,C[20 Space_Borg_Probe],Phaser Array,Pn.Phaser_Array,Phaser,Kill,200,200",
	"24:01:15:20:05:00.0::Alice,P[100@200 Alice@alice],,*,Borg Sphere,C[21 Space_Borg_Sphere],Phaser Array,Pn.Phaser_Array,Phaser,,50,50",
}

func testCombats(t *testing.T) []*engine.Combat {
	t.Helper()
	var events []model.CombatEvent
	for i, l := range testLines {
		ev, err := parse.ParseLine("combatlog.log", i+1, l, time.UTC)
		if err != nil {
			t.Fatalf("line %d: %v", i+1, err)
		}
		events = append(events, ev)
	}
	combats, err := engine.BuildSessions(events, 20*time.Second)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(combats) != 2 {
		t.Fatalf("combats=%d want=2", len(combats))
	}
	combats[0].Map = "Generic Space"
	return combats
}

func newTestServer(t *testing.T) (*Server, *engine.Store, *httptest.Server) {
	t.Helper()
	store := engine.NewStore()
	store.Replace(testCombats(t))
	s := NewServer(store, Options{
		View: engine.SnapshotOptions{MinInactive: 4 * time.Second, CombinePets: true},
		Now:  func() time.Time { return time.Date(2024, 1, 15, 21, 0, 0, 0, time.UTC) },
	})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, store, ts
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s status=%d want=%d body=%s", url, resp.StatusCode, wantStatus, body)
	}
	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			t.Fatalf("%s decode: %v body=%s", url, err, body)
		}
	}
}

func TestListCombats_MostRecentFirst(t *testing.T) {
	_, store, ts := newTestServer(t)

	var snap engine.Snapshot
	getJSON(t, ts.URL+"/api/combats", http.StatusOK, &snap)
	if snap.CombatCount != 2 || len(snap.Combats) != 2 || snap.Version != store.Version() {
		t.Fatalf("count=%d version=%d", snap.CombatCount, snap.Version)
	}
	if !snap.Combats[0].Start.After(snap.Combats[1].Start) {
		t.Fatalf("combats not most recent first: %v %v", snap.Combats[0].Start, snap.Combats[1].Start)
	}
	older := snap.Combats[1]
	if older.Map != "Generic Space" || len(older.Players) != 1 || older.Players[0].Name != "Alice" {
		t.Fatalf("older=%+v", older)
	}

	var limited engine.Snapshot
	getJSON(t, ts.URL+"/api/combats?limit=1&summary=true", http.StatusOK, &limited)
	if len(limited.Combats) != 1 || limited.Combats[0].Players != nil {
		t.Fatalf("limited=%+v", limited.Combats)
	}

	getJSON(t, ts.URL+"/api/combats?limit=x", http.StatusBadRequest, nil)
}

func TestListCombats_LastHours(t *testing.T) {
	_, _, ts := newTestServer(t)

	// now is 21:00; the combats end at 20:00:09 and 20:05:00
	var recent engine.Snapshot
	getJSON(t, ts.URL+"/api/combats?hours=0.95", http.StatusOK, &recent)
	if recent.CombatCount != 1 || !recent.Combats[0].Start.Equal(time.Date(2024, 1, 15, 20, 5, 0, 0, time.UTC)) {
		t.Fatalf("recent=%+v", recent.Combats)
	}

	var all engine.Snapshot
	getJSON(t, ts.URL+"/api/combats?hours=2", http.StatusOK, &all)
	if all.CombatCount != 2 {
		t.Fatalf("count=%d want=2", all.CombatCount)
	}

	getJSON(t, ts.URL+"/api/combats?hours=-1", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/combats?hours=x", http.StatusBadRequest, nil)
}

func TestGetCombat(t *testing.T) {
	_, store, ts := newTestServer(t)
	first := store.List()[0]

	var view engine.CombatView
	getJSON(t, ts.URL+"/api/combats/"+first.ID, http.StatusOK, &view)
	if view.ID != first.ID || view.EventCount != 4 || !view.Locked {
		t.Fatalf("view=%+v", view)
	}

	var e ErrorResponse
	getJSON(t, ts.URL+"/api/combats/nope", http.StatusNotFound, &e)
	if e.Error == "" {
		t.Fatalf("missing error text")
	}
}

func TestGetBreakdown(t *testing.T) {
	_, store, ts := newTestServer(t)
	first := store.List()[0]
	base := ts.URL + "/api/combats/" + first.ID + "/breakdown"

	var bd engine.BreakdownView
	getJSON(t, base+"?owner="+url.QueryEscape(aliceID), http.StatusOK, &bd)
	if bd.Entity != "Alice" || len(bd.Rows) != 1 || bd.Rows[0].Damage != 300 {
		t.Fatalf("breakdown=%+v", bd)
	}
	if len(bd.Pets) != 1 || bd.Pets[0].Source != "Fighter Squadron" {
		t.Fatalf("pets=%+v", bd.Pets)
	}

	getJSON(t, base, http.StatusBadRequest, nil)
	getJSON(t, base+"?owner="+url.QueryEscape("P[1@1 Nobody@x]"), http.StatusNotFound, nil)
}

func TestGetTimeline(t *testing.T) {
	_, store, ts := newTestServer(t)
	first := store.List()[0]

	var tl engine.Timeline
	getJSON(t, ts.URL+"/api/combats/"+first.ID+"/timeline?bucketSec=5&players=true", http.StatusOK, &tl)
	if tl.CombatID != first.ID || tl.BucketSec != 5 || len(tl.Buckets) == 0 {
		t.Fatalf("timeline=%+v", tl)
	}
	if len(tl.Names) != 1 || tl.Names[0] != "Alice" {
		t.Fatalf("names=%v", tl.Names)
	}

	getJSON(t, ts.URL+"/api/combats/"+first.ID+"/timeline?bucketSec=0", http.StatusBadRequest, nil)
}

func TestHealthAndMetrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	var h HealthResponse
	getJSON(t, ts.URL+"/healthz", http.StatusOK, &h)
	if !h.Ok || h.CombatCount != 2 {
		t.Fatalf("health=%+v", h)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "stolog_hub_clients") {
		t.Fatalf("metrics missing hub gauge")
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readMessage(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode: %v body=%s", err, b)
	}
}

func TestWS_SnapshotThenStoreUpdates(t *testing.T) {
	s, store, ts := newTestServer(t)
	c := dialWS(t, ts)

	var snap SnapshotMessage
	readMessage(t, c, &snap)
	if snap.Type != msgSnapshot || snap.Snapshot.CombatCount != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.room.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	combats := testCombats(t)
	store.Replace(combats[1:])

	var upd StoreUpdateMessage
	readMessage(t, c, &upd)
	if upd.Type != msgStoreUpdate || upd.Version != store.Version() || len(upd.Combats) != 1 {
		t.Fatalf("update=%+v", upd)
	}
	if upd.Kind != engine.UpdateCreated.String() || upd.Combats[0].ID != combats[1].ID {
		t.Fatalf("kind=%s id=%s", upd.Kind, upd.Combats[0].ID)
	}
}
