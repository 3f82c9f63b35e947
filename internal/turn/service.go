package turn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tutorgate/internal/memory"
	"tutorgate/internal/models"
	"tutorgate/internal/phase"
	"tutorgate/internal/service/ai"
	"tutorgate/internal/worker"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrCharacterNotFound = errors.New("invalid character_id")
	ErrScenarioNotFound  = errors.New("invalid scenario_id")
	ErrSessionEnded      = errors.New("session has ended")
	ErrSessionBusy       = errors.New("session already has a turn in progress")
	ErrForbidden         = errors.New("session belongs to another user")
	ErrEmptyText         = errors.New("text is required")
)

const (
	defaultTopK       = 2
	transcriptLimit   = 1000
	detachedSaveLimit = 10 * time.Second
)

// Store is the structured data the orchestrator reads and appends to.
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	CountMessages(ctx context.Context, sessionID string, role models.Role) (int, error)
	AddMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	UpdatePhase(ctx context.Context, sessionID, phase string) error
}

// Catalog resolves characters and scenarios. Missing rows are sql.ErrNoRows.
type Catalog interface {
	Character(ctx context.Context, id string) (*models.Character, error)
	Scenario(ctx context.Context, id string) (*models.Scenario, error)
}

type ChatModel interface {
	Model() string
	Stream(ctx context.Context, msgs []models.Message) (ai.TokenStream, error)
}

type MemoryRetriever interface {
	Retrieve(ctx context.Context, userID, query string, topK int) []string
}

type MemoryWriter interface {
	Write(ctx context.Context, req memory.WriteRequest) (memory.WriteResult, error)
}

// JobQueue accepts background memory writes. *worker.Dispatcher satisfies it.
type JobQueue interface {
	Submit(job worker.Job) error
}

type Options struct {
	TopK int
	// Background queues memory writes instead of running them before done.
	Background bool
	Language   string
}

type Service struct {
	store     Store
	catalog   Catalog
	chat      ChatModel
	retriever MemoryRetriever
	writer    MemoryWriter
	queue     JobQueue
	opts      Options
	log       logrus.FieldLogger
	locks     *sessionLocks
}

// NewService wires the orchestrator. retriever, writer and queue may be nil,
// which turns the matching memory step off.
func NewService(store Store, catalog Catalog, chat ChatModel, retriever MemoryRetriever, writer MemoryWriter, queue JobQueue, opts Options, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		chat:      chat,
		retriever: retriever,
		writer:    writer,
		queue:     queue,
		opts:      opts,
		log:       log,
		locks:     newSessionLocks(),
	}
}

type Request struct {
	SessionID string
	Text      string
	// CallerUserID is the authenticated user, empty for anonymous callers.
	CallerUserID string
}

// Prepare validates a turn and resolves everything generation needs. On
// success the session stays locked until the Turn is streamed or released.
func (s *Service) Prepare(ctx context.Context, req Request) (*Turn, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.HasUser() && sess.UserID != req.CallerUserID {
		return nil, ErrForbidden
	}
	if sess.Status == models.SessionEnded {
		return nil, ErrSessionEnded
	}
	if !s.locks.tryLock(sess.ID) {
		return nil, ErrSessionBusy
	}

	t, err := s.prepareLocked(ctx, sess, text)
	if err != nil {
		s.locks.unlock(sess.ID)
		return nil, err
	}
	return t, nil
}

func (s *Service) prepareLocked(ctx context.Context, sess *models.Session, text string) (*Turn, error) {
	log := s.log.WithField("session_id", sess.ID)

	character, err := s.catalog.Character(ctx, sess.CharacterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("load character: %w", err)
	}
	scenario, err := s.catalog.Scenario(ctx, sess.ScenarioID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScenarioNotFound
		}
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	transcript, err := s.store.ListMessages(ctx, sess.ID, transcriptLimit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	// counted separately so long sessions are not capped by the transcript limit
	userTurns, err := s.store.CountMessages(ctx, sess.ID, models.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("count user turns: %w", err)
	}

	current := phase.Parse(sess.Phase)
	if next, changed := phase.BeforeGeneration(current, userTurns, text); changed {
		current = next
		if err := s.store.UpdatePhase(ctx, sess.ID, string(next)); err != nil {
			log.WithError(err).Warn("chat_phase_update_failed")
		}
	}

	var profile *models.Profile
	var memories []string
	if sess.HasUser() {
		p, err := s.store.GetProfile(ctx, sess.UserID)
		if err != nil {
			log.WithError(err).Warn("chat_user_profile_failed")
		} else if !p.IsEmpty() {
			profile = &p
		}

		if s.retriever != nil {
			start := time.Now()
			memories = s.retriever.Retrieve(ctx, sess.UserID, text, s.opts.TopK)
			log.WithFields(logrus.Fields{
				"elapsed_ms": time.Since(start).Milliseconds(),
				"count":      len(memories),
			}).Info("chat_memory_retrieved")
		}
	}

	system := phase.BuildSystemPrompt(phase.PromptInput{
		Character: *character,
		Scenario:  *scenario,
		Phase:     current,
		Profile:   profile,
		Memories:  memories,
		Language:  s.opts.Language,
	})
	log.WithField("prompt_chars", len(system)).Debug("chat_prompt_built")

	msgs := make([]models.Message, 0, len(transcript)+2)
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: system})
	for _, m := range transcript {
		if (m.Role == models.RoleUser || m.Role == models.RoleAssistant) && m.Content != "" {
			msgs = append(msgs, *m)
		}
	}
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: text})

	return &Turn{
		svc:         s,
		session:     sess,
		storedPhase: sess.Phase,
		phase:       current,
		text:        text,
		messages:    msgs,
		log:         log,
	}, nil
}
