package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/exambot/internal/i18n"
	"github.com/pavelanni/exambot/internal/lock"
	"github.com/pavelanni/exambot/internal/model"
)

// DefaultLockTimeout bounds how long an event waits behind another event of the same user.
const DefaultLockTimeout = 30 * time.Second

// SessionStore loads and saves user sessions.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, userID string) (model.UserSession, error)
	SaveTurn(ctx context.Context, sess *model.UserSession, answer *model.AnswerLogEntry) error
}

// Engine runs one inbound message as a unit of work: lock the user, load the
// session, step the machine and persist the result.
type Engine struct {
	machine     *Machine
	store       SessionStore
	locker      lock.Locker
	lockTimeout time.Duration
}

// NewEngine creates an Engine. A nil locker serializes users in process.
func NewEngine(machine *Machine, store SessionStore, locker lock.Locker, lockTimeout time.Duration) *Engine {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Engine{machine: machine, store: store, locker: locker, lockTimeout: lockTimeout}
}

// HandleMessage processes text from userID and returns the replies to send.
// Failures are logged and answered with a localized "unavailable" reply; the
// stored session is left untouched in that case.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) []model.Reply {
	if model.RequestIDFromContext(ctx) == "" {
		ctx = model.ContextWithRequestID(ctx, uuid.NewString())
	}
	log := slog.With("request_id", model.RequestIDFromContext(ctx), "user_id", userID)

	sess, replies, err := e.handle(ctx, userID, text)
	if err != nil {
		log.Error("handle message", "error", err)
		// Without a loaded session the exam menu still offers stats and help.
		menu := e.machine.menus.For(StateNeedExam, "")
		if sess != nil {
			menu = e.machine.menus.For(StateOf(*sess), sess.Exam)
		}
		return []model.Reply{{Text: i18n.T(ctx, "Unavailable"), Menu: menu}}
	}
	log.Debug("message handled", "state", StateOf(*sess), "replies", len(replies))
	return replies
}

// handle returns the last known session alongside any error so the caller can
// keep showing the right menu.
func (e *Engine) handle(ctx context.Context, userID, text string) (*model.UserSession, []model.Reply, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	unlock, err := e.locker.Lock(lockCtx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	sess, err := e.store.GetOrCreateSession(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	out, err := e.machine.Step(ctx, sess, text)
	if err != nil {
		return &sess, nil, err
	}
	if !out.Mutated && out.Answer == nil {
		return &out.Session, out.Replies, nil
	}

	next := out.Session
	if err := e.store.SaveTurn(ctx, &next, out.Answer); err != nil {
		return &sess, nil, fmt.Errorf("save session: %w", err)
	}
	return &next, out.Replies, nil
}
