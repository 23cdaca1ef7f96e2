package gameserver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/munchkin-companion/server/internal/game/session"
)

// ErrActorStopped is returned for commands submitted after an actor shut down.
var ErrActorStopped = errors.New("session actor stopped")

// actorQueueSize bounds how many commands can wait per session before
// submitters block.
const actorQueueSize = 64

type actorRequest struct {
	ctx      context.Context
	cmd      Command
	issuerID string
	reply    chan error
}

// actor serializes every mutation of one session through a single
// goroutine. The store itself is last-write-wins, so the actor is what
// turns concurrent client commands into a clean sequence of
// read-validate-write steps with no lost updates.
type actor struct {
	sessionID string
	repo      *session.Repository
	logger    *zap.Logger
	queue     chan actorRequest
	stop      chan struct{}
	stopped   chan struct{}
}

func newActor(sessionID string, repo *session.Repository, logger *zap.Logger) *actor {
	a := &actor{
		sessionID: sessionID,
		repo:      repo,
		logger:    logger,
		queue:     make(chan actorRequest, actorQueueSize),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *actor) run() {
	defer close(a.stopped)
	for {
		select {
		case req := <-a.queue:
			a.execute(req)
		case <-a.stop:
			// Drain what was already queued so accepted commands are not
			// silently dropped.
			for {
				select {
				case req := <-a.queue:
					a.execute(req)
				default:
					return
				}
			}
		}
	}
}

func (a *actor) execute(req actorRequest) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- err
		return
	}
	err := req.cmd.Apply(req.ctx, a.repo, a.sessionID, req.issuerID)
	if err != nil {
		a.logger.Debug("command rejected",
			zap.String("session_id", a.sessionID),
			zap.String("command", req.cmd.Name()),
			zap.String("issuer_id", req.issuerID),
			zap.Error(err),
		)
	}
	req.reply <- err
}

// do submits cmd and waits for its result.
func (a *actor) do(ctx context.Context, issuerID string, cmd Command) error {
	req := actorRequest{ctx: ctx, cmd: cmd, issuerID: issuerID, reply: make(chan error, 1)}
	select {
	case a.queue <- req:
	case <-a.stopped:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-a.stopped:
		// The request may have slipped into the queue after the drain
		// loop's last pass; the reply channel settles which happened.
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrActorStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown stops the actor after draining its queue.
func (a *actor) shutdown() {
	close(a.stop)
	<-a.stopped
}
