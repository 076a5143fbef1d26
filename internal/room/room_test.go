package room

import (
	"context"
	"testing"
	"time"

	"github.com/teamdiff/draft-backend/internal/draft"
	"github.com/teamdiff/draft-backend/internal/protocol"
	"github.com/teamdiff/draft-backend/internal/store"
)

func testState() draft.State {
	return draft.NewState("R1", draft.Params{
		TeamBlue: "T1",
		TeamRed:  "GEN",
		BestOf:   3,
		Mode:     "tournament",
		HostKey:  "secret",
	})
}

func testConfig() Config {
	return Config{
		TurnTimeout:     30 * time.Second,
		GraceDisconnect: 10 * time.Second,
		GraceLeave:      60 * time.Second,
	}
}

// waitFor drains the outbox until the named event arrives.
func waitFor(t *testing.T, ch <-chan protocol.ServerEvent, event string, within time.Duration) protocol.ServerEvent {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %q", event)
			}
			if ev.Event == event {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

// expectNone fails if the named event (or a close) shows up within the window.
func expectNone(t *testing.T, ch <-chan protocol.ServerEvent, event string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while expecting no %q", event)
			}
			if ev.Event == event {
				t.Fatalf("expected no %q, got %+v", event, ev)
			}
		case <-deadline:
			return
		}
	}
}

func getView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func join(r *Room, clientID, participantID string, side draft.Side) chan protocol.ServerEvent {
	out := make(chan protocol.ServerEvent, 256)
	r.Inbox() <- Join{ClientID: clientID, ParticipantID: participantID, Side: side, Outbox: out}
	return out
}

func TestJoinBroadcastsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, testState(), testConfig(), Deps{})
	out := join(r, "c1", "p-blue", draft.SideBlue)

	ev := waitFor(t, out, protocol.EvRoomStatus, time.Second)
	state, ok := ev.Data.(draft.State)
	if !ok {
		t.Fatalf("room-status payload must be the session snapshot, got %T", ev.Data)
	}
	if state.ID != "R1" || state.Status != draft.StatusAwaitingReady {
		t.Fatalf("bad snapshot: %+v", state)
	}
}

func TestBothReadyStartsDraft(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, testState(), testConfig(), Deps{})
	blue := join(r, "c1", "p-blue", draft.SideBlue)
	red := join(r, "c2", "p-red", draft.SideRed)

	r.Inbox() <- Ready{Side: draft.SideBlue}
	expectNone(t, blue, protocol.EvStartDraft, 100*time.Millisecond)

	r.Inbox() <- Ready{Side: draft.SideRed}
	ev := waitFor(t, blue, protocol.EvStartDraft, time.Second)
	start, ok := ev.Data.(protocol.StartDraft)
	if !ok {
		t.Fatalf("bad start-draft payload: %T", ev.Data)
	}
	if len(start.Order) != 20 {
		t.Fatalf("want 20-turn order, got %d", len(start.Order))
	}
	if start.CurrentGame != 1 || start.HostKey != "secret" {
		t.Fatalf("bad start-draft payload: %+v", start)
	}

	// Both sides see the countdown immediately.
	tick := waitFor(t, red, protocol.EvTimer, time.Second)
	if secs, ok := tick.Data.(int); !ok || secs != 30 {
		t.Fatalf("want initial countdown 30, got %+v", tick.Data)
	}
}

func startDrafting(t *testing.T, r *Room) (blue, red chan protocol.ServerEvent) {
	t.Helper()
	blue = join(r, "c1", "p-blue", draft.SideBlue)
	red = join(r, "c2", "p-red", draft.SideRed)
	r.Inbox() <- Ready{Side: draft.SideBlue}
	r.Inbox() <- Ready{Side: draft.SideRed}
	waitFor(t, blue, protocol.EvStartDraft, time.Second)
	return blue, red
}

func TestSelectResolvesActiveTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, testState(), testConfig(), Deps{})
	blue, _ := startDrafting(t, r)

	r.Inbox() <- Select{Champion: "Aatrox", Side: draft.SideBlue, Phase: draft.PhaseBan}
	ev := waitFor(t, blue, protocol.EvUpdateDraft, time.Second)
	upd := ev.Data.(protocol.UpdateDraft)
	if upd.Champion == nil || *upd.Champion != "Aatrox" {
		t.Fatalf("bad update-draft: %+v", upd)
	}
	if upd.Side != draft.SideBlue || upd.Phase != draft.PhaseBan {
		t.Fatalf("bad update-draft: %+v", upd)
	}

	if v := getView(t, r); v.State.TurnIndex != 1 {
		t.Fatalf("want turnIndex=1, got %d", v.State.TurnIndex)
	}
}

func TestMismatchedSelectIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, testState(), testConfig(), Deps{})
	blue, _ := startDrafting(t, r)

	// Turn 0 is ban(blue); a red submission must change nothing.
	r.Inbox() <- Select{Champion: "Aatrox", Side: draft.SideRed, Phase: draft.PhaseBan}
	expectNone(t, blue, protocol.EvUpdateDraft, 200*time.Millisecond)

	if v := getView(t, r); v.State.TurnIndex != 0 || len(v.State.History) != 0 {
		t.Fatalf("state mutated by mismatched selection: %+v", v.State)
	}
}

func TestTimeoutAutoResolvesBanToNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.TurnTimeout = 0 // expire on the first tick
	r := New(ctx, testState(), cfg, Deps{Catalog: []string{"Aatrox"}})
	blue, _ := startDrafting(t, r)

	ev := waitFor(t, blue, protocol.EvUpdateDraft, 3*time.Second)
	upd := ev.Data.(protocol.UpdateDraft)
	if upd.Champion != nil {
		t.Fatalf("timed-out ban must broadcast a nil champion, got %v", *upd.Champion)
	}
	if upd.Phase != draft.PhaseBan || upd.Side != draft.SideBlue {
		t.Fatalf("bad auto-resolution: %+v", upd)
	}
}

func TestManualSelectInvalidatesPendingTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.TurnTimeout = time.Second
	r := New(ctx, testState(), cfg, Deps{Catalog: []string{"OnlyChamp"}})
	blue, _ := startDrafting(t, r)

	// Resolve turn 0 manually before its deadline; the armed timeout for
	// turn 0 must not fire again on the stale generation.
	r.Inbox() <- Select{Champion: "Aatrox", Side: draft.SideBlue, Phase: draft.PhaseBan}
	waitFor(t, blue, protocol.EvUpdateDraft, time.Second)

	// Let the original deadline pass, plus the fresh one for turn 1.
	time.Sleep(2500 * time.Millisecond)

	v := getView(t, r)
	if len(v.State.History) != v.State.TurnIndex {
		t.Fatalf("stale timer corrupted state: history=%d turnIndex=%d",
			len(v.State.History), v.State.TurnIndex)
	}
	if v.State.History[0].Champion == nil || *v.State.History[0].Champion != "Aatrox" {
		t.Fatalf("manual selection lost: %+v", v.State.History[0])
	}
	// Turn 1 (ban red) timed out on its own deadline exactly once.
	if v.State.TurnIndex < 2 || v.State.History[1].Champion != nil {
		t.Fatalf("turn 1 not auto-resolved as expected: %+v", v.State.History)
	}
}

func TestRejoinWithinGraceKeepsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removed := make(chan struct{}, 1)
	cfg := testConfig()
	cfg.GraceDisconnect = 300 * time.Millisecond
	r := New(ctx, testState(), cfg, Deps{OnRemove: func() { removed <- struct{}{} }})

	join(r, "c1", "p-blue", draft.SideBlue)
	red := join(r, "c2", "p-red", draft.SideRed)

	r.Inbox() <- Disconnect{ClientID: "c1", ParticipantID: "p-blue"}
	time.Sleep(100 * time.Millisecond)
	// Same participant returns on a fresh connection.
	join(r, "c3", "p-blue", draft.SideBlue)

	expectNone(t, red, protocol.EvUserLeft, 600*time.Millisecond)
	select {
	case <-removed:
		t.Fatalf("session removed despite timely rejoin")
	default:
	}
}

func TestDisconnectClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	r := New(ctx, testState(), cfg, Deps{})

	old := join(r, "c1", "p-blue", draft.SideBlue)
	waitFor(t, old, protocol.EvRoomStatus, time.Second)

	// Dropping the connection must release its outbox even though the
	// participant stays in grace; otherwise every reconnect strands a
	// writer draining a channel nobody closes.
	r.Inbox() <- Disconnect{ClientID: "c1", ParticipantID: "p-blue"}

	deadline := time.After(time.Second)
	for closed := false; !closed; {
		select {
		case _, ok := <-old:
			closed = !ok
		case <-deadline:
			t.Fatalf("disconnected outbox never closed")
		}
	}

	// The session itself survives for the rejoin.
	fresh := join(r, "c2", "p-blue", draft.SideBlue)
	ev := waitFor(t, fresh, protocol.EvRoomStatus, time.Second)
	if state := ev.Data.(draft.State); state.ID != "R1" {
		t.Fatalf("rejoin landed in the wrong session: %+v", state)
	}
}

func TestGraceExpiryBroadcastsAndRemoves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removed := make(chan struct{}, 1)
	cfg := testConfig()
	cfg.GraceDisconnect = 100 * time.Millisecond
	r := New(ctx, testState(), cfg, Deps{OnRemove: func() { removed <- struct{}{} }})

	join(r, "c1", "p-blue", draft.SideBlue)
	red := join(r, "c2", "p-red", draft.SideRed)

	r.Inbox() <- Disconnect{ClientID: "c1", ParticipantID: "p-blue"}

	ev := waitFor(t, red, protocol.EvUserLeft, time.Second)
	if left := ev.Data.(protocol.UserLeft); left.Side != draft.SideBlue {
		t.Fatalf("departure must name the participant's side, got %+v", left)
	}

	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatalf("expired grace must remove the session")
	}

	// Outboxes are closed on teardown.
	for {
		if _, ok := <-red; !ok {
			return
		}
	}
}

func TestExplicitLeaveUsesLongGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.GraceDisconnect = 50 * time.Millisecond
	cfg.GraceLeave = 400 * time.Millisecond
	r := New(ctx, testState(), cfg, Deps{})

	join(r, "c1", "p-blue", draft.SideBlue)
	red := join(r, "c2", "p-red", draft.SideRed)

	r.Inbox() <- Leave{ParticipantID: "p-blue"}

	// The short window passing proves leave got the long one.
	expectNone(t, red, protocol.EvUserLeft, 200*time.Millisecond)
	waitFor(t, red, protocol.EvUserLeft, time.Second)
}

type captureRecorder struct {
	records chan store.SeriesRecord
}

func (c *captureRecorder) RecordSeries(_ context.Context, rec store.SeriesRecord) error {
	c.records <- rec
	return nil
}

func runDraftTurns(t *testing.T, r *Room, out chan protocol.ServerEvent) {
	t.Helper()
	for i := 0; i < len(draft.Order); i++ {
		cur := draft.Order[i]
		r.Inbox() <- Select{Champion: champName(i), Side: cur.Side, Phase: cur.Phase}
		waitFor(t, out, protocol.EvUpdateDraft, time.Second)
	}
}

func champName(i int) string {
	names := []string{
		"Aatrox", "Ahri", "Akali", "Alistar", "Amumu", "Annie", "Ashe", "Azir",
		"Bard", "Blitzcrank", "Brand", "Braum", "Caitlyn", "Camille", "Corki",
		"Darius", "Diana", "Draven", "Ekko", "Elise",
	}
	return names[i]
}

func TestSeriesEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &captureRecorder{records: make(chan store.SeriesRecord, 1)}
	r := New(ctx, testState(), testConfig(), Deps{Recorder: rec})

	blue, _ := startDrafting(t, r)

	// Game 1.
	runDraftTurns(t, r, blue)
	fin := waitFor(t, blue, protocol.EvDraftFinished, time.Second)
	history := fin.Data.([]draft.HistoryEntry)
	if len(history) != 20 {
		t.Fatalf("draft-finished must carry 20 entries, got %d", len(history))
	}
	for i, h := range history {
		if h.Side != draft.Order[i].Side || h.Phase != draft.Order[i].Phase {
			t.Fatalf("history[%d] off-pattern: %+v", i, h)
		}
	}

	r.Inbox() <- MatchResult{Winner: "T1", HostKey: "secret"}
	choose := waitFor(t, blue, protocol.EvChooseSide, time.Second)
	cs := choose.Data.(protocol.ChooseSide)
	if cs.LoserSide != draft.SideRed || cs.NextGame != 2 {
		t.Fatalf("bad choose-side: %+v", cs)
	}

	r.Inbox() <- SideChosen{LoserSide: draft.SideRed, ChosenSide: draft.SideBlue, HostKey: "secret"}
	nd := waitFor(t, blue, protocol.EvNextDraft, time.Second)
	next := nd.Data.(protocol.NextDraft)
	if next.CurrentGame != 2 || next.SideMap[draft.SideBlue] != "GEN" {
		t.Fatalf("bad next-draft: %+v", next)
	}

	// Game 2: sides re-ready, second win closes the bo3.
	r.Inbox() <- Ready{Side: draft.SideBlue}
	r.Inbox() <- Ready{Side: draft.SideRed}
	waitFor(t, blue, protocol.EvStartDraft, time.Second)
	runDraftTurns(t, r, blue)
	waitFor(t, blue, protocol.EvDraftFinished, time.Second)

	r.Inbox() <- MatchResult{Winner: "T1", HostKey: "secret"}
	sf := waitFor(t, blue, protocol.EvSeriesFinished, time.Second)
	score := sf.Data.(protocol.SeriesFinished)
	if score.WinsBlue != 2 || score.WinsRed != 0 {
		t.Fatalf("want 2-0 for the team that started blue, got %+v", score)
	}

	select {
	case recd := <-rec.records:
		if recd.Winner != "T1" || recd.WinsBlue != 2 || recd.WinsRed != 0 || recd.SessionID != "R1" {
			t.Fatalf("bad series record: %+v", recd)
		}
	case <-time.After(time.Second):
		t.Fatalf("series completion must write exactly one record")
	}
}

func TestWrongHostKeyIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, testState(), testConfig(), Deps{})
	blue, _ := startDrafting(t, r)
	runDraftTurns(t, r, blue)
	waitFor(t, blue, protocol.EvDraftFinished, time.Second)

	r.Inbox() <- MatchResult{Winner: "T1", HostKey: "wrong"}
	expectNone(t, blue, protocol.EvChooseSide, 200*time.Millisecond)
	expectNone(t, blue, protocol.EvSeriesFinished, 100*time.Millisecond)

	if v := getView(t, r); v.State.Series.Wins["T1"] != 0 {
		t.Fatalf("non-host result must not score: %+v", v.State.Series)
	}
}
