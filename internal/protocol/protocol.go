// Package protocol defines the JSON event vocabulary exchanged over the
// websocket channel. Every frame is an envelope {"event": ..., "data": ...}.
//
// Client -> Server: join-room, ready, select-champion, match-result,
// side-chosen, user-leave.
// Server -> Client: room-status, start-draft, timer, update-draft,
// draft-finished, choose-side, next-draft, series-finished, user-left.
package protocol

import (
	"encoding/json"

	"github.com/teamdiff/draft-backend/internal/draft"
)

// Inbound event names.
const (
	EvJoinRoom       = "join-room"
	EvReady          = "ready"
	EvSelectChampion = "select-champion"
	EvMatchResult    = "match-result"
	EvSideChosen     = "side-chosen"
	EvUserLeave      = "user-leave"
)

// Outbound event names.
const (
	EvRoomStatus     = "room-status"
	EvStartDraft     = "start-draft"
	EvTimer          = "timer"
	EvUpdateDraft    = "update-draft"
	EvDraftFinished  = "draft-finished"
	EvChooseSide     = "choose-side"
	EvNextDraft      = "next-draft"
	EvSeriesFinished = "series-finished"
	EvUserLeft       = "user-left"
)

// ClientEvent is the envelope for inbound frames. Data is decoded per
// event name by the websocket handler.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the envelope for outbound frames.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoom struct {
	SessionID     string     `json:"sessionId"`
	Side          draft.Side `json:"side"`
	ParticipantID string     `json:"participantId"`
	TeamBlue      string     `json:"teamBlue"`
	TeamRed       string     `json:"teamRed"`
	BestOf        int        `json:"bestOf"`
	Mode          string     `json:"mode"`
	HostKey       string     `json:"hostKey"`
}

type SelectChampion struct {
	SessionID string      `json:"sessionId"`
	Champion  string      `json:"champion"`
	Side      draft.Side  `json:"side"`
	Phase     draft.Phase `json:"phase"`
}

type MatchResult struct {
	SessionID string `json:"sessionId"`
	Winner    string `json:"winner"`
	HostKey   string `json:"hostKey"`
}

type SideChosen struct {
	SessionID  string     `json:"sessionId"`
	LoserSide  draft.Side `json:"loserSide"`
	ChosenSide draft.Side `json:"chosenSide"`
	HostKey    string     `json:"hostKey"`
}

type UserLeave struct {
	SessionID     string     `json:"sessionId"`
	Side          draft.Side `json:"side"`
	ParticipantID string     `json:"participantId"`
}

type StartDraft struct {
	Order       []draft.Turn `json:"order"`
	CurrentGame int          `json:"currentGame"`
	HostKey     string       `json:"hostKey"`
}

type UpdateDraft struct {
	Champion *string     `json:"champion"`
	Side     draft.Side  `json:"side"`
	Phase    draft.Phase `json:"phase"`
}

type ChooseSide struct {
	LoserSide draft.Side `json:"loserSide"`
	NextGame  int        `json:"nextGame"`
}

type NextDraft struct {
	CurrentGame int                   `json:"currentGame"`
	SideMap     map[draft.Side]string `json:"sideMap"`
}

type SeriesFinished struct {
	WinsBlue int `json:"winsBlue"`
	WinsRed  int `json:"winsRed"`
}

type UserLeft struct {
	Side draft.Side `json:"side"`
}
