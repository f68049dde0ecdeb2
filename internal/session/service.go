package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"geoquiz/internal/flow"
	"geoquiz/internal/platform/logger"
)

const lockStripes = 64

// Service applies actions to stored sessions. Actions on the same session id
// are serialised; different sessions proceed independently.
type Service struct {
	controller *flow.Controller
	store      Store
	completer  Completer
	log        *logger.Logger
	locks      [lockStripes]sync.Mutex
}

func NewService(controller *flow.Controller, store Store, completer Completer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{controller: controller, store: store, completer: completer, log: log}
}

func (s *Service) Controller() *flow.Controller {
	return s.controller
}

func (s *Service) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// Current returns the stored state, or a fresh intake state for unknown ids.
func (s *Service) Current(ctx context.Context, id string) (flow.State, error) {
	st, err := s.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.controller.New(), nil
	}
	if err != nil {
		return flow.State{}, fmt.Errorf("load session: %w", err)
	}
	return st, nil
}

// Dispatch applies a to the session and persists the result. When the
// action completes the flow, export and delivery run before Dispatch
// returns, so the returned state already carries the outcome.
func (s *Service) Dispatch(ctx context.Context, id string, a flow.Action) (flow.State, error) {
	if a.Kind == flow.ActionFinalized {
		return flow.State{}, fmt.Errorf("%w: %s is internal", flow.ErrInvalidAction, a.Kind)
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	cur, err := s.Current(ctx, id)
	if err != nil {
		return flow.State{}, err
	}

	next, err := s.controller.Apply(ctx, cur, a)
	if err != nil {
		return cur, err
	}
	log := s.log.With("session_id", id)
	if next.Stage != cur.Stage {
		log.Info("stage changed", "from", cur.Stage, "to", next.Stage, "action", a.Kind)
	}

	// Pending state is persisted before delivery; a failed save sends nothing.
	if next.Pending() && s.completer != nil {
		if err := s.store.Save(ctx, id, next); err != nil {
			return cur, fmt.Errorf("save session: %w", err)
		}
		outcome := s.completer.Complete(ctx, next)
		next, err = s.controller.Apply(ctx, next, flow.Action{Kind: flow.ActionFinalized, Outcome: &outcome})
		if err != nil {
			return cur, fmt.Errorf("record outcome: %w", err)
		}
		log.Info("session finalized", "score", next.Result.Score, "delivered", outcome.Delivered)
		if err := s.store.Save(ctx, id, next); err != nil {
			log.Error("save finalized session failed", "err", err)
		}
		return next, nil
	}

	if a.Kind == flow.ActionRestart {
		if err := s.store.Delete(ctx, id); err != nil {
			return cur, fmt.Errorf("clear session: %w", err)
		}
		return next, nil
	}
	if err := s.store.Save(ctx, id, next); err != nil {
		return cur, fmt.Errorf("save session: %w", err)
	}
	return next, nil
}
