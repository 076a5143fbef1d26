package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamdiff/draft-backend/internal/draft"
	"github.com/teamdiff/draft-backend/internal/protocol"
	"github.com/teamdiff/draft-backend/internal/registry"
	"github.com/teamdiff/draft-backend/internal/room"
)

const writeTimeout = 3 * time.Second

// conn tracks what this channel has asserted about itself. The
// participant id is the stable identity; the websocket connection id
// changes on every reconnect.
type conn struct {
	sessionID     string
	participantID string
	side          draft.Side
	rm            *room.Room
}

func Handler(reg *registry.Registry, origins []string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		outbox := make(chan protocol.ServerEvent, 16)
		log := log.With(zap.String("conn", clientID))

		// Writer goroutine: pumps the outbox until the room closes it or
		// the connection itself goes away.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case ev, ok := <-outbox:
					if !ok {
						// Outbox closed: the session is gone, hang up.
						c.Close(websocket.StatusGoingAway, "session closed")
						return
					}
					payload, err := json.Marshal(ev)
					if err != nil {
						log.Error("marshal outbound event", zap.Error(err))
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = c.Write(ctx, websocket.MessageText, payload)
					cancel()
				case <-writeCtx.Done():
					return
				}
			}
		}()

		sess := conn{}
		// On channel loss, start the short grace window for whoever this
		// connection represented.
		defer func() {
			if sess.rm != nil {
				sess.rm.Inbox() <- room.Disconnect{
					ClientID:      clientID,
					ParticipantID: sess.participantID,
				}
			}
		}()

		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				return
			}

			var ev protocol.ClientEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Debug("bad frame", zap.Error(err))
				continue
			}
			handleEvent(reg, log, clientID, outbox, &sess, ev)
		}
	}
}

// handleEvent routes one inbound event. Unknown sessions, malformed
// payloads, and out-of-turn actions are all dropped without a reply; the
// client only learns state through broadcasts.
func handleEvent(reg *registry.Registry, log *zap.Logger, clientID string,
	outbox chan protocol.ServerEvent, sess *conn, ev protocol.ClientEvent) {

	switch ev.Event {
	case protocol.EvJoinRoom:
		var p protocol.JoinRoom
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.SessionID == "" {
			return
		}
		if sess.rm != nil && sess.sessionID != p.SessionID {
			// A channel serves one session for its lifetime; hopping
			// would hand a closed outbox to the next room. Reconnect
			// on a fresh channel instead.
			log.Debug("join for a different session dropped",
				zap.String("have", sess.sessionID), zap.String("want", p.SessionID))
			return
		}
		reply := make(chan *room.Room, 1)
		reg.Inbox() <- registry.Ensure{
			ID: p.SessionID,
			Params: draft.Params{
				TeamBlue: p.TeamBlue,
				TeamRed:  p.TeamRed,
				BestOf:   p.BestOf,
				Mode:     p.Mode,
				HostKey:  p.HostKey,
			},
			Reply: reply,
		}
		rm := <-reply
		sess.sessionID = p.SessionID
		sess.participantID = p.ParticipantID
		sess.side = p.Side
		sess.rm = rm
		rm.Inbox() <- room.Join{
			ClientID:      clientID,
			ParticipantID: p.ParticipantID,
			Side:          p.Side,
			Outbox:        outbox,
		}

	case protocol.EvReady:
		// Side comes from what this channel asserted at join, never from
		// the payload.
		if sess.rm == nil {
			return
		}
		if sess.side != draft.SideBlue && sess.side != draft.SideRed {
			return
		}
		sess.rm.Inbox() <- room.Ready{Side: sess.side}

	case protocol.EvSelectChampion:
		var p protocol.SelectChampion
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if rm := lookup(reg, p.SessionID); rm != nil {
			rm.Inbox() <- room.Select{Champion: p.Champion, Side: p.Side, Phase: p.Phase}
		}

	case protocol.EvMatchResult:
		var p protocol.MatchResult
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if rm := lookup(reg, p.SessionID); rm != nil {
			rm.Inbox() <- room.MatchResult{Winner: p.Winner, HostKey: p.HostKey}
		}

	case protocol.EvSideChosen:
		var p protocol.SideChosen
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if rm := lookup(reg, p.SessionID); rm != nil {
			rm.Inbox() <- room.SideChosen{
				LoserSide:  p.LoserSide,
				ChosenSide: p.ChosenSide,
				HostKey:    p.HostKey,
			}
		}

	case protocol.EvUserLeave:
		var p protocol.UserLeave
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if rm := lookup(reg, p.SessionID); rm != nil {
			rm.Inbox() <- room.Leave{ParticipantID: p.ParticipantID}
		}

	default:
		log.Debug("unknown event", zap.String("event", ev.Event))
	}
}

func lookup(reg *registry.Registry, sessionID string) *room.Room {
	if sessionID == "" {
		return nil
	}
	reply := make(chan *room.Room, 1)
	reg.Inbox() <- registry.Get{ID: sessionID, Reply: reply}
	return <-reply
}
