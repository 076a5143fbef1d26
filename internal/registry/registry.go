// Package registry owns the session id -> room table. It is an actor like
// the rooms it manages: all map access happens inside one loop.
package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/teamdiff/draft-backend/internal/draft"
	"github.com/teamdiff/draft-backend/internal/room"
	"github.com/teamdiff/draft-backend/internal/store"
)

type Msg interface{ isRegistryMsg() }

// Ensure creates the session if absent and replies with it either way.
type Ensure struct {
	ID     string
	Params draft.Params
	Reply  chan *room.Room
}

type Get struct {
	ID    string
	Reply chan *room.Room
}

type Remove struct{ ID string }

type Shutdown struct{}

func (Ensure) isRegistryMsg()   {}
func (Get) isRegistryMsg()      {}
func (Remove) isRegistryMsg()   {}
func (Shutdown) isRegistryMsg() {}

// Deps are shared across every room the registry creates.
type Deps struct {
	Catalog  []string
	Recorder store.Recorder
	Log      *zap.Logger
}

type Registry struct {
	inbox   chan Msg
	rooms   map[string]*room.Room
	roomCfg room.Config
	deps    Deps
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, roomCfg room.Config, deps Deps) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = store.Noop{}
	}
	g := &Registry{
		inbox:   make(chan Msg, 64),
		rooms:   make(map[string]*room.Room),
		roomCfg: roomCfg,
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
	}
	go g.loop()
	return g
}

func (g *Registry) Inbox() chan<- Msg { return g.inbox }

func (g *Registry) loop() {
	for {
		select {
		case <-g.ctx.Done():
			g.shutdown()
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case Ensure:
				if rm := g.rooms[msg.ID]; rm != nil {
					msg.Reply <- rm
					break
				}
				g.deps.Log.Info("session created", zap.String("session", msg.ID))
				id := msg.ID
				rm := room.New(g.ctx, draft.NewState(id, msg.Params), g.roomCfg, room.Deps{
					Catalog:  g.deps.Catalog,
					Recorder: g.deps.Recorder,
					Log:      g.deps.Log,
					OnRemove: func() {
						select {
						case g.inbox <- Remove{ID: id}:
						case <-g.ctx.Done():
						}
					},
				})
				g.rooms[id] = rm
				msg.Reply <- rm

			case Get:
				msg.Reply <- g.rooms[msg.ID] // may be nil

			case Remove:
				if _, ok := g.rooms[msg.ID]; ok {
					g.deps.Log.Info("session removed", zap.String("session", msg.ID))
					delete(g.rooms, msg.ID)
				}

			case Shutdown:
				g.shutdown()
				return
			}
		}
	}
}

func (g *Registry) shutdown() {
	for _, rm := range g.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(g.rooms)
	g.cancel()
}
