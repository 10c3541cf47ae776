package operator

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
	"brainlink.ai/internal/scene"
	"brainlink.ai/internal/session"
)

func testBackend(t *testing.T, rolls ...int) *session.Registry {
	t.Helper()
	r, err := dice.NewScripted(rolls...)
	if err != nil {
		t.Fatalf("NewScripted: %v", err)
	}
	sc := scene.New(scene.Spec{Actors: []scene.ActorSpec{{ID: "adv-1"}, {ID: "adv-2"}}})
	reg := session.New(session.Options{Scene: sc, Roller: r, FlashDuration: time.Hour})
	t.Cleanup(reg.Close)
	return reg
}

func stage(t *testing.T, reg *session.Registry, actorID string) {
	t.Helper()
	p := protocol.IntentProposal{
		Type:    protocol.TypeIntent,
		ActorID: actorID,
		Goal:    "advance",
		Intent:  "move",
		CandidateActions: []protocol.CandidateAction{
			{Action: "move", Params: map[string]any{"destDX": 1.0, "destDZ": 2.0}},
			{Action: "talk", Params: map[string]any{}},
		},
	}
	if _, err := reg.Receive(p); err != nil {
		t.Fatalf("Receive: %v", err)
	}
}

func post(t *testing.T, base string, tool string, input any) (int, []byte) {
	t.Helper()
	payload := map[string]any{"tool": tool}
	if input != nil {
		payload["input"] = input
	}
	b, _ := json.Marshal(payload)
	res, err := http.Post(base+"/command", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, body
}

func newTestServer(t *testing.T, reg *session.Registry, secret string) *httptest.Server {
	t.Helper()
	s, err := NewServer(Config{Backend: reg, HMACSecret: secret})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewServer_RequiresBackend(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestCommand_Healthz(t *testing.T) {
	ts := newTestServer(t, testBackend(t, 10), "")
	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if res.StatusCode != 200 || string(b) != "ok" {
		t.Fatalf("healthz: %d %q", res.StatusCode, b)
	}
}

func TestCommand_UnknownTool(t *testing.T) {
	ts := newTestServer(t, testBackend(t, 10), "")
	code, body := post(t, ts.URL, "createGameObject", map[string]any{"name": "x"})
	if code != http.StatusBadRequest || !strings.Contains(string(body), "unknown tool") {
		t.Fatalf("got %d %s", code, body)
	}
}

func TestCommand_RollFlow(t *testing.T) {
	reg := testBackend(t, 4, 15)
	ts := newTestServer(t, reg, "")

	if code, body := post(t, ts.URL, "roll", map[string]any{"actorId": "adv-1"}); code != http.StatusConflict {
		t.Fatalf("roll without proposal: %d %s", code, body)
	}

	stage(t, reg, "adv-1")
	if code, body := post(t, ts.URL, "cycle_candidate", map[string]any{"actorId": "adv-1"}); code != 200 || !strings.Contains(string(body), `"candidateIndex":1`) {
		t.Fatalf("cycle: %d %s", code, body)
	}
	if code, body := post(t, ts.URL, "cycle_candidate", map[string]any{"actorId": "adv-1", "index": 0}); code != 200 || !strings.Contains(string(body), `"candidateIndex":0`) {
		t.Fatalf("select: %d %s", code, body)
	}
	if code, body := post(t, ts.URL, "set_dc", map[string]any{"actorId": "adv-1", "dc": 40}); code != 200 || !strings.Contains(string(body), `"dc":20`) {
		t.Fatalf("set_dc clamps: %d %s", code, body)
	}
	if code, _ := post(t, ts.URL, "set_dc", map[string]any{"actorId": "adv-1", "dc": 12}); code != 200 {
		t.Fatalf("set_dc: %d", code)
	}

	code, body := post(t, ts.URL, "roll", map[string]any{"actorId": "adv-1"})
	if code != 200 {
		t.Fatalf("roll: %d %s", code, body)
	}
	var rr RollResult
	if err := json.Unmarshal(body, &rr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Success || rr.Roll != 4 || rr.DC != 12 || rr.Moved {
		t.Fatalf("expected failed roll: %+v", rr)
	}

	code, body = post(t, ts.URL, "reroll", map[string]any{"actorId": "adv-1"})
	if code != 200 {
		t.Fatalf("reroll: %d %s", code, body)
	}
	rr = RollResult{}
	_ = json.Unmarshal(body, &rr)
	if !rr.Success || rr.Roll != 15 || rr.Action != "move" || !rr.Moved || rr.Via != "teleport" {
		t.Fatalf("expected successful move: %+v", rr)
	}
	b, _ := reg.Scene.Body("adv-1")
	if got := b.Position(); got != (mathx.Vec3{X: 1, Z: 2}) {
		t.Fatalf("position: %v", got)
	}
	if got, _ := reg.Outcomes.GetLast("adv-1"); got != "success(15/12)" {
		t.Fatalf("outcome: %q", got)
	}
}

func TestCommand_TogglesAndNarrate(t *testing.T) {
	reg := testBackend(t, 10)
	ts := newTestServer(t, reg, "")

	if code, body := post(t, ts.URL, "auto_resolve", nil); code != 200 || !reg.AutoResolve() {
		t.Fatalf("auto_resolve toggle: %d %s", code, body)
	}
	if code, _ := post(t, ts.URL, "auto_resolve", map[string]any{"enabled": false}); code != 200 || reg.AutoResolve() {
		t.Fatalf("auto_resolve explicit off")
	}
	if code, _ := post(t, ts.URL, "respect_suggested_dc", map[string]any{"enabled": true}); code != 200 || !reg.RespectSuggested() {
		t.Fatalf("respect_suggested_dc on")
	}
	if code, _ := post(t, ts.URL, "set_dc", map[string]any{"dc": 3}); code != 200 || reg.Stage.DefaultDC() != dice.MinDC {
		t.Fatalf("default dc: %d", reg.Stage.DefaultDC())
	}
	if code, body := post(t, ts.URL, "set_dc", map[string]any{"actorId": "adv-1"}); code != http.StatusBadRequest {
		t.Fatalf("set_dc without dc: %d %s", code, body)
	}
	if code, _ := post(t, ts.URL, "narrate", map[string]any{"actorId": "adv-2", "note": "a chill wind"}); code != 200 {
		t.Fatalf("narrate: %d", code)
	}
	if note, _ := reg.Notes.Get("adv-2"); note != "a chill wind" {
		t.Fatalf("note: %q", note)
	}
	if code, _ := post(t, ts.URL, "narrate", map[string]any{"note": "orphan"}); code != http.StatusBadRequest {
		t.Fatalf("narrate without actor should be rejected")
	}

	code, body := post(t, ts.URL, "status", nil)
	if code != 200 {
		t.Fatalf("status: %d", code)
	}
	var st session.Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.RespectSuggestedDC || st.DefaultDC != dice.MinDC || len(st.Actors) != 2 || st.Actors[1].Note != "a chill wind" {
		t.Fatalf("status: %+v", st)
	}
}

func TestCommand_SaveWithoutStore(t *testing.T) {
	ts := newTestServer(t, testBackend(t, 10), "")
	if code, body := post(t, ts.URL, "save", nil); code != http.StatusConflict {
		t.Fatalf("save without store: %d %s", code, body)
	}
}

func TestCommand_HMAC(t *testing.T) {
	reg := testBackend(t, 10)
	srv, err := NewServer(Config{Backend: reg, HMACSecret: "topsecret"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	now := time.UnixMilli(1700000000000)
	srv.now = func() time.Time { return now }
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := []byte(`{"tool":"narrate","input":{"actorId":"adv-1","note":"signed"}}`)
	send := func(nonce string, sign bool) int {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/command", bytes.NewReader(body))
		if sign {
			Sign(req, body, "topsecret", "relay", nonce, now)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		res.Body.Close()
		return res.StatusCode
	}

	if code := send("", false); code != http.StatusUnauthorized {
		t.Fatalf("unsigned: %d", code)
	}
	if code := send("n-1", true); code != 200 {
		t.Fatalf("signed: %d", code)
	}
	if code := send("n-1", true); code != http.StatusUnauthorized {
		t.Fatalf("replay should be rejected: %d", code)
	}
	if code := send("n-2", true); code != 200 {
		t.Fatalf("fresh nonce: %d", code)
	}
	if note, _ := reg.Notes.Get("adv-1"); note != "signed" {
		t.Fatalf("note: %q", note)
	}
}

type fakeLink struct {
	connected bool
	sessions  int
}

func (l fakeLink) Connected() bool { return l.connected }
func (l fakeLink) Sessions() int   { return l.sessions }

func TestCommand_PartyAndSceneTools(t *testing.T) {
	reg := testBackend(t, 10)
	ts := newTestServer(t, reg, "")

	if code, body := post(t, ts.URL, "set_hp", map[string]any{"actorId": "adv-1", "hp": 4}); code != 200 {
		t.Fatalf("set_hp: %d %s", code, body)
	}
	if code, _ := post(t, ts.URL, "set_hp", map[string]any{"actorId": "adv-1"}); code != http.StatusBadRequest {
		t.Fatalf("set_hp without hp: %d", code)
	}
	if code, body := post(t, ts.URL, "give_item", map[string]any{"actorId": "adv-1", "item": "torch"}); code != 200 {
		t.Fatalf("give_item: %d %s", code, body)
	}
	if code, _ := post(t, ts.URL, "give_item", map[string]any{"actorId": "adv-1"}); code != http.StatusBadRequest {
		t.Fatalf("give_item without item: %d", code)
	}
	if code, body := post(t, ts.URL, "set_time", map[string]any{"time": "midnight"}); code != 200 {
		t.Fatalf("set_time: %d %s", code, body)
	}

	a, _ := reg.Party.Get("adv-1")
	if a.HP != 4 || len(a.Inventory) != 1 || a.Inventory[0] != "torch" {
		t.Fatalf("party: %+v", a)
	}
	if reg.Scene.Time() != "midnight" {
		t.Fatalf("time: %q", reg.Scene.Time())
	}
}

func TestCommand_StatusIncludesGatewayLink(t *testing.T) {
	reg := testBackend(t, 10)
	s, err := NewServer(Config{Backend: reg, Link: fakeLink{connected: true, sessions: 2}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := post(t, ts.URL, "status", nil)
	if code != 200 {
		t.Fatalf("status: %d", code)
	}
	var st StatusReply
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Gateway == nil || !st.Gateway.Connected || st.Gateway.Sessions != 2 || len(st.Actors) != 2 {
		t.Fatalf("status: %s", body)
	}

	// Without a link the reply carries no gateway section.
	_, body = post(t, newTestServer(t, reg, "").URL, "status", nil)
	if strings.Contains(string(body), `"gateway"`) {
		t.Fatalf("unexpected gateway section: %s", body)
	}
}
