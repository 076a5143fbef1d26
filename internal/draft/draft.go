// Package draft holds the pure session state machine: the ban/pick turn
// sequencer and the best-of-N series progression. It has no goroutines,
// timers, or I/O; the room actor drives it with commands and reacts to
// the events it returns.
package draft

import (
	"errors"
	"math/rand"
	"slices"
)

var ErrWrongTurn = errors.New("selection does not match the active turn")
var ErrBadStatus = errors.New("command not valid in current status")
var ErrNotHost = errors.New("host key mismatch")
var ErrResultPosted = errors.New("result already posted for this game")
var ErrUnknownTeam = errors.New("unknown team identifier")
var ErrUnknownSide = errors.New("unknown side")
var ErrPoolExhausted = errors.New("champion pool exhausted")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Side string

const (
	SideBlue Side = "blue"
	SideRed  Side = "red"
)

type Phase string

const (
	PhaseBan  Phase = "ban"
	PhasePick Phase = "pick"
)

// Turn identifies whose action is expected at one step of the order.
type Turn struct {
	Phase Phase `json:"phase"`
	Side  Side  `json:"side"`
}

type Status string

const (
	StatusAwaitingReady  Status = "awaiting-ready"
	StatusDrafting       Status = "drafting"
	StatusAwaitingResult Status = "awaiting-result"
	StatusChoosingSide   Status = "choosing-side"
	StatusFinished       Status = "finished"
)

// HistoryEntry is one resolved turn. Champion is nil for a timed-out ban.
type HistoryEntry struct {
	Champion *string `json:"champion"`
	Side     Side    `json:"side"`
	Phase    Phase   `json:"phase"`
}

type Series struct {
	Wins         map[string]int `json:"winsPerTeam"`
	CurrentGame  int            `json:"currentGame"`
	ResultPosted bool           `json:"resultPosted"`
	Over         bool           `json:"over"`
}

// State is the full snapshot of one session. TeamBlue and TeamRed are the
// teams as they joined and never change; SideMap tracks which team currently
// occupies which color and is the only thing a side swap mutates.
type State struct {
	ID        string          `json:"sessionId"`
	HostKey   string          `json:"hostKey"`
	Mode      string          `json:"mode"`
	BestOf    int             `json:"bestOf"`
	TeamBlue  string          `json:"teamBlue"`
	TeamRed   string          `json:"teamRed"`
	SideMap   map[Side]string `json:"sideMap"`
	Ready     map[Side]bool   `json:"ready"`
	Status    Status          `json:"status"`
	Order     []Turn          `json:"order"`
	TurnIndex int             `json:"turnIndex"`
	History   []HistoryEntry  `json:"history"`
	Series    Series          `json:"series"`
}

type Params struct {
	TeamBlue string
	TeamRed  string
	BestOf   int
	Mode     string
	HostKey  string
}

func NewState(id string, p Params) State {
	return State{
		ID:       id,
		HostKey:  p.HostKey,
		Mode:     p.Mode,
		BestOf:   p.BestOf,
		TeamBlue: p.TeamBlue,
		TeamRed:  p.TeamRed,
		SideMap:  map[Side]string{SideBlue: p.TeamBlue, SideRed: p.TeamRed},
		Ready:    map[Side]bool{},
		Status:   StatusAwaitingReady,
		Series: Series{
			Wins:        map[string]int{p.TeamBlue: 0, p.TeamRed: 0},
			CurrentGame: 1,
		},
	}
}

type CommandType string

const (
	CmdReady       CommandType = "Ready"
	CmdSelect      CommandType = "Select"
	CmdTimeout     CommandType = "Timeout"
	CmdMatchResult CommandType = "MatchResult"
	CmdSideChosen  CommandType = "SideChosen"
)

type Command struct {
	Type       CommandType
	Side       Side   // Ready, Select
	Phase      Phase  // Select
	Champion   string // Select
	Winner     string // MatchResult: team identifier
	LoserSide  Side   // SideChosen
	ChosenSide Side   // SideChosen
	HostKey    string // MatchResult, SideChosen
}

type EventType string

const (
	EvtStatusChanged  EventType = "StatusChanged"
	EvtDraftStarted   EventType = "DraftStarted"
	EvtTurnResolved   EventType = "TurnResolved"
	EvtDraftFinished  EventType = "DraftFinished"
	EvtChooseSide     EventType = "ChooseSide"
	EvtNextDraft      EventType = "NextDraft"
	EvtSeriesFinished EventType = "SeriesFinished"
)

type Event struct {
	Type      EventType
	Champion  *string // TurnResolved
	Side      Side    // TurnResolved
	Phase     Phase   // TurnResolved
	LoserSide Side    // ChooseSide
	Game      int     // ChooseSide (next game), NextDraft (current game)
	WinsBlue  int     // SeriesFinished: wins of the team that started blue
	WinsRed   int
}

// pickRandom draws one champion from a non-empty pool. Package var so
// tests can pin the draw.
var pickRandom = func(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

// Apply runs one command against the state and returns the events to
// broadcast plus the successor state. The input state is never mutated.
// catalog is the full champion pool, consulted only for timeout auto-picks.
func Apply(s State, cmd Command, catalog []string) ([]Event, State, error) {
	next := s.clone()

	switch cmd.Type {
	case CmdReady:
		if s.Status != StatusAwaitingReady {
			return nil, s, ErrBadStatus
		}
		if cmd.Side != SideBlue && cmd.Side != SideRed {
			return nil, s, ErrUnknownSide
		}
		next.Ready[cmd.Side] = true
		events := []Event{{Type: EvtStatusChanged}}
		if next.Ready[SideBlue] && next.Ready[SideRed] {
			startDraft(&next)
			events = append(events, Event{Type: EvtDraftStarted})
		}
		return events, next, nil

	case CmdSelect:
		if s.Status != StatusDrafting {
			return nil, s, ErrBadStatus
		}
		cur := s.Order[s.TurnIndex]
		if cur.Side != cmd.Side || cur.Phase != cmd.Phase {
			return nil, s, ErrWrongTurn
		}
		champ := cmd.Champion
		return resolveTurn(&next, &champ), next, nil

	case CmdTimeout:
		if s.Status != StatusDrafting {
			return nil, s, ErrBadStatus
		}
		cur := s.Order[s.TurnIndex]
		var champ *string
		if cur.Phase == PhasePick {
			pool := available(s, catalog)
			if len(pool) == 0 {
				return nil, s, ErrPoolExhausted
			}
			c := pickRandom(pool)
			champ = &c
		}
		return resolveTurn(&next, champ), next, nil

	case CmdMatchResult:
		if cmd.HostKey != s.HostKey {
			return nil, s, ErrNotHost
		}
		if s.Series.ResultPosted {
			return nil, s, ErrResultPosted
		}
		if cmd.Winner != s.TeamBlue && cmd.Winner != s.TeamRed {
			return nil, s, ErrUnknownTeam
		}
		next.Series.ResultPosted = true
		next.Series.Wins[cmd.Winner]++

		need := (s.BestOf + 1) / 2
		if next.Series.Wins[cmd.Winner] >= need {
			next.Series.Over = true
			next.Status = StatusFinished
			return []Event{{
				Type:     EvtSeriesFinished,
				WinsBlue: next.Series.Wins[next.TeamBlue],
				WinsRed:  next.Series.Wins[next.TeamRed],
			}}, next, nil
		}

		loser := next.TeamBlue
		if cmd.Winner == next.TeamBlue {
			loser = next.TeamRed
		}
		loserSide := SideRed
		if next.SideMap[SideBlue] == loser {
			loserSide = SideBlue
		}
		next.Ready = map[Side]bool{}
		next.Status = StatusChoosingSide
		return []Event{{
			Type:      EvtChooseSide,
			LoserSide: loserSide,
			Game:      next.Series.CurrentGame + 1,
		}}, next, nil

	case CmdSideChosen:
		if cmd.HostKey != s.HostKey {
			return nil, s, ErrNotHost
		}
		if s.Status != StatusChoosingSide {
			return nil, s, ErrBadStatus
		}
		if cmd.ChosenSide != cmd.LoserSide {
			next.SideMap[SideBlue], next.SideMap[SideRed] =
				next.SideMap[SideRed], next.SideMap[SideBlue]
		}
		next.Series.CurrentGame++
		next.Status = StatusAwaitingReady
		return []Event{{Type: EvtNextDraft, Game: next.Series.CurrentGame}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func startDraft(s *State) {
	s.Status = StatusDrafting
	s.Order = slices.Clone(Order)
	s.TurnIndex = 0
	s.History = []HistoryEntry{}
	s.Series.ResultPosted = false
}

// resolveTurn appends the entry for the active turn and advances the
// cursor, closing the draft on the final step.
func resolveTurn(s *State, champion *string) []Event {
	cur := s.Order[s.TurnIndex]
	s.History = append(s.History, HistoryEntry{Champion: champion, Side: cur.Side, Phase: cur.Phase})
	s.TurnIndex++

	events := []Event{{Type: EvtTurnResolved, Champion: champion, Side: cur.Side, Phase: cur.Phase}}
	if s.TurnIndex >= len(s.Order) {
		s.Status = StatusAwaitingResult
		events = append(events, Event{Type: EvtDraftFinished})
	}
	return events
}

// available filters the catalog down to champions not yet in the history.
func available(s State, catalog []string) []string {
	used := make(map[string]bool, len(s.History))
	for _, h := range s.History {
		if h.Champion != nil {
			used[*h.Champion] = true
		}
	}
	pool := make([]string, 0, len(catalog))
	for _, c := range catalog {
		if !used[c] {
			pool = append(pool, c)
		}
	}
	return pool
}

func (s State) clone() State {
	next := s
	next.SideMap = map[Side]string{}
	for k, v := range s.SideMap {
		next.SideMap[k] = v
	}
	next.Ready = map[Side]bool{}
	for k, v := range s.Ready {
		next.Ready[k] = v
	}
	next.Series.Wins = map[string]int{}
	for k, v := range s.Series.Wins {
		next.Series.Wins[k] = v
	}
	next.Order = slices.Clone(s.Order)
	next.History = slices.Clone(s.History)
	return next
}

// ActiveTurn reports the turn awaiting resolution, if the session is drafting.
func (s State) ActiveTurn() (Turn, bool) {
	if s.Status != StatusDrafting || s.TurnIndex >= len(s.Order) {
		return Turn{}, false
	}
	return s.Order[s.TurnIndex], true
}
