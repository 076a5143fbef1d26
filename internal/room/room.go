// Package room runs one goroutine per session. All session state is owned
// by that goroutine and only touched inside its loop; timers post
// generation-stamped messages back into the inbox so a stale fire after a
// turn resolution or teardown is a no-op.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teamdiff/draft-backend/internal/draft"
	"github.com/teamdiff/draft-backend/internal/protocol"
	"github.com/teamdiff/draft-backend/internal/store"
)

const tickInterval = time.Second

type Config struct {
	TurnTimeout     time.Duration
	GraceDisconnect time.Duration
	GraceLeave      time.Duration
}

func DefaultConfig() Config {
	return Config{
		TurnTimeout:     30 * time.Second,
		GraceDisconnect: 10 * time.Second,
		GraceLeave:      60 * time.Second,
	}
}

type Msg interface{ isRoomMsg() }

// Join attaches a connection's outbox and (re)claims a participant slot.
// A rejoin under a known participant id cancels its pending grace timer.
type Join struct {
	ClientID      string
	ParticipantID string
	Side          draft.Side
	Outbox        chan protocol.ServerEvent
}

type Ready struct{ Side draft.Side }

type Select struct {
	Champion string
	Side     draft.Side
	Phase    draft.Phase
}

type MatchResult struct {
	Winner  string
	HostKey string
}

type SideChosen struct {
	LoserSide  draft.Side
	ChosenSide draft.Side
	HostKey    string
}

// Disconnect reports a lost channel; starts the short grace window.
type Disconnect struct {
	ClientID      string
	ParticipantID string
}

// Leave is an explicit departure; starts the long grace window.
type Leave struct{ ParticipantID string }

type GetState struct{ Reply chan View }

type Shutdown struct{}

type tick struct{ gen uint64 }

type graceExpired struct {
	participantID string
	gen           uint64
}

func (Join) isRoomMsg()         {}
func (Ready) isRoomMsg()        {}
func (Select) isRoomMsg()       {}
func (MatchResult) isRoomMsg()  {}
func (SideChosen) isRoomMsg()   {}
func (Disconnect) isRoomMsg()   {}
func (Leave) isRoomMsg()        {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (tick) isRoomMsg()         {}
func (graceExpired) isRoomMsg() {}

// View reflects internal state for tests and the HTTP snapshot route.
type View struct {
	State        draft.State
	NumClients   int
	Participants map[string]draft.Side
}

// Deps are the collaborators a room needs beyond its own state.
type Deps struct {
	Catalog  []string
	Recorder store.Recorder
	Log      *zap.Logger
	// OnRemove is called exactly once when the room tears itself down,
	// so the registry can drop its reference.
	OnRemove func()
}

type grace struct {
	gen   uint64
	timer *time.Timer
}

type Room struct {
	inbox        chan Msg
	state        draft.State
	cfg          Config
	clients      map[string]chan protocol.ServerEvent
	participants map[string]draft.Side
	graces       map[string]*grace
	graceGen     uint64

	deadline time.Time
	timerGen uint64

	catalog  []string
	recorder store.Recorder
	log      *zap.Logger
	onRemove func()

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, initial draft.State, cfg Config, deps Deps) *Room {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = store.Noop{}
	}
	r := &Room{
		inbox:        make(chan Msg, 64),
		state:        initial,
		cfg:          cfg,
		clients:      make(map[string]chan protocol.ServerEvent),
		participants: make(map[string]draft.Side),
		graces:       make(map[string]*grace),
		catalog:      deps.Catalog,
		recorder:     deps.Recorder,
		log:          deps.Log.With(zap.String("session", initial.ID)),
		onRemove:     deps.OnRemove,
		ctx:          ctx,
		cancel:       cancel,
	}
	go r.loop()
	return r
}

// Inbox exposes the message channel to the ws layer and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown(false)
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Ready:
				r.apply(draft.Command{Type: draft.CmdReady, Side: msg.Side})

			case Select:
				r.apply(draft.Command{
					Type:     draft.CmdSelect,
					Side:     msg.Side,
					Phase:    msg.Phase,
					Champion: msg.Champion,
				})

			case MatchResult:
				r.apply(draft.Command{
					Type:    draft.CmdMatchResult,
					Winner:  msg.Winner,
					HostKey: msg.HostKey,
				})

			case SideChosen:
				r.apply(draft.Command{
					Type:       draft.CmdSideChosen,
					LoserSide:  msg.LoserSide,
					ChosenSide: msg.ChosenSide,
					HostKey:    msg.HostKey,
				})

			case Disconnect:
				// Close the outbox so the connection's writer exits;
				// channels are closed exactly when they leave the map.
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}
				if _, known := r.participants[msg.ParticipantID]; known {
					r.armGrace(msg.ParticipantID, r.cfg.GraceDisconnect)
				}

			case Leave:
				if _, known := r.participants[msg.ParticipantID]; known {
					r.armGrace(msg.ParticipantID, r.cfg.GraceLeave)
				}

			case tick:
				r.handleTick(msg)

			case graceExpired:
				if r.handleGraceExpired(msg) {
					return
				}

			case GetState:
				parts := make(map[string]draft.Side, len(r.participants))
				for k, v := range r.participants {
					parts[k] = v
				}
				msg.Reply <- View{State: r.state, NumClients: len(r.clients), Participants: parts}

			case Shutdown:
				r.shutdown(false)
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	r.clients[msg.ClientID] = msg.Outbox
	if msg.ParticipantID != "" && (msg.Side == draft.SideBlue || msg.Side == draft.SideRed) {
		r.participants[msg.ParticipantID] = msg.Side
	}
	if g := r.graces[msg.ParticipantID]; g != nil {
		g.timer.Stop()
		delete(r.graces, msg.ParticipantID)
		r.log.Info("rejoin within grace window", zap.String("participant", msg.ParticipantID))
	}
	r.broadcast(protocol.ServerEvent{Event: protocol.EvRoomStatus, Data: r.state})
}

// apply runs one command through the state machine. Rejected commands are
// dropped silently; the sender only ever observes state through broadcasts.
func (r *Room) apply(cmd draft.Command) {
	events, next, err := draft.Apply(r.state, cmd, r.catalog)
	if err != nil {
		if errors.Is(err, draft.ErrPoolExhausted) {
			r.log.Error("champion pool exhausted during auto-pick, tearing session down")
			r.shutdown(true)
			return
		}
		r.log.Debug("command dropped", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return
	}
	r.state = next
	for _, ev := range events {
		r.emit(ev)
	}
}

func (r *Room) emit(ev draft.Event) {
	switch ev.Type {
	case draft.EvtStatusChanged:
		r.broadcast(protocol.ServerEvent{Event: protocol.EvRoomStatus, Data: r.state})

	case draft.EvtDraftStarted:
		r.broadcast(protocol.ServerEvent{Event: protocol.EvStartDraft, Data: protocol.StartDraft{
			Order:       r.state.Order,
			CurrentGame: r.state.Series.CurrentGame,
			HostKey:     r.state.HostKey,
		}})
		r.armTurnTimer()

	case draft.EvtTurnResolved:
		r.broadcast(protocol.ServerEvent{Event: protocol.EvUpdateDraft, Data: protocol.UpdateDraft{
			Champion: ev.Champion,
			Side:     ev.Side,
			Phase:    ev.Phase,
		}})
		if r.state.Status == draft.StatusDrafting {
			r.armTurnTimer()
		}

	case draft.EvtDraftFinished:
		r.timerGen++ // invalidate any pending tick
		r.broadcast(protocol.ServerEvent{Event: protocol.EvDraftFinished, Data: r.state.History})

	case draft.EvtChooseSide:
		r.broadcast(protocol.ServerEvent{Event: protocol.EvChooseSide, Data: protocol.ChooseSide{
			LoserSide: ev.LoserSide,
			NextGame:  ev.Game,
		}})

	case draft.EvtNextDraft:
		r.broadcast(protocol.ServerEvent{Event: protocol.EvNextDraft, Data: protocol.NextDraft{
			CurrentGame: r.state.Series.CurrentGame,
			SideMap:     r.state.SideMap,
		}})

	case draft.EvtSeriesFinished:
		r.timerGen++
		r.broadcast(protocol.ServerEvent{Event: protocol.EvSeriesFinished, Data: protocol.SeriesFinished{
			WinsBlue: ev.WinsBlue,
			WinsRed:  ev.WinsRed,
		}})
		r.recordSeries()
	}
}

// armTurnTimer starts a fresh deadline for the active turn and begins the
// 1 Hz countdown. Bumping the generation orphans any tick already in flight.
func (r *Room) armTurnTimer() {
	r.deadline = time.Now().Add(r.cfg.TurnTimeout)
	r.timerGen++
	r.broadcastTimer()
	r.scheduleTick(r.timerGen)
}

func (r *Room) scheduleTick(gen uint64) {
	time.AfterFunc(tickInterval, func() {
		select {
		case r.inbox <- tick{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) handleTick(msg tick) {
	if msg.gen != r.timerGen || r.state.Status != draft.StatusDrafting {
		return
	}
	r.broadcastTimer()
	if time.Now().Before(r.deadline) {
		r.scheduleTick(msg.gen)
		return
	}
	r.apply(draft.Command{Type: draft.CmdTimeout})
}

func (r *Room) broadcastTimer() {
	remain := time.Until(r.deadline)
	secs := int((remain + tickInterval - 1) / tickInterval)
	if secs < 0 {
		secs = 0
	}
	r.broadcast(protocol.ServerEvent{Event: protocol.EvTimer, Data: secs})
}

// armGrace starts (or restarts) the teardown countdown for a participant.
// A pending timer for the same participant is replaced, never stacked.
func (r *Room) armGrace(participantID string, d time.Duration) {
	if g := r.graces[participantID]; g != nil {
		g.timer.Stop()
	}
	r.graceGen++
	gen := r.graceGen
	t := time.AfterFunc(d, func() {
		select {
		case r.inbox <- graceExpired{participantID: participantID, gen: gen}:
		case <-r.ctx.Done():
		}
	})
	r.graces[participantID] = &grace{gen: gen, timer: t}
}

// handleGraceExpired reports whether the room tore itself down.
func (r *Room) handleGraceExpired(msg graceExpired) bool {
	g := r.graces[msg.participantID]
	if g == nil || g.gen != msg.gen {
		return false
	}
	delete(r.graces, msg.participantID)

	side := r.participants[msg.participantID]
	r.log.Info("grace period expired",
		zap.String("participant", msg.participantID),
		zap.String("side", string(side)))
	r.broadcast(protocol.ServerEvent{Event: protocol.EvUserLeft, Data: protocol.UserLeft{Side: side}})
	r.shutdown(true)
	return true
}

func (r *Room) recordSeries() {
	winner := r.state.TeamBlue
	if r.state.Series.Wins[r.state.TeamRed] > r.state.Series.Wins[r.state.TeamBlue] {
		winner = r.state.TeamRed
	}
	rec := store.SeriesRecord{
		SessionID:  r.state.ID,
		Mode:       r.state.Mode,
		BestOf:     r.state.BestOf,
		TeamBlue:   r.state.TeamBlue,
		TeamRed:    r.state.TeamRed,
		WinsBlue:   r.state.Series.Wins[r.state.TeamBlue],
		WinsRed:    r.state.Series.Wins[r.state.TeamRed],
		Winner:     winner,
		FinishedAt: time.Now(),
	}
	log := r.log
	recorder := r.recorder
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.RecordSeries(ctx, rec); err != nil {
			log.Error("record series", zap.Error(err))
		}
	}()
}

// shutdown closes every outbox and stops the loop. remove tells the
// registry to forget this room; registry-initiated shutdowns pass false.
func (r *Room) shutdown(remove bool) {
	for _, g := range r.graces {
		g.timer.Stop()
	}
	clear(r.graces)
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
	if remove && r.onRemove != nil {
		r.onRemove()
	}
}

func (r *Room) broadcast(ev protocol.ServerEvent) {
	for id, ch := range r.clients {
		select {
		case ch <- ev:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}
