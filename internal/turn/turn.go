package turn

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tutorgate/internal/memory"
	"tutorgate/internal/models"
	"tutorgate/internal/phase"
	"tutorgate/internal/worker"
)

// ErrAborted is returned by Stream when the caller went away mid-reply.
var ErrAborted = errors.New("turn aborted")

// Turn is a prepared turn holding its session lock.
type Turn struct {
	svc         *Service
	session     *models.Session
	storedPhase string
	phase       phase.Phase
	text        string
	messages    []models.Message
	log         logrus.FieldLogger

	releaseOnce sync.Once
}

// Phase is the phase the reply is generated in.
func (t *Turn) Phase() phase.Phase {
	return t.phase
}

// Messages is the full provider input, system prompt first.
func (t *Turn) Messages() []models.Message {
	return t.messages
}

// Release frees the session lock. Stream calls it; callers that never stream must.
func (t *Turn) Release() {
	t.releaseOnce.Do(func() {
		t.svc.locks.unlock(t.session.ID)
	})
}

// Stream generates the reply and reports progress through emit. Exactly one
// terminal event (done or error) is attempted. An emit error is treated as a
// disconnect.
func (t *Turn) Stream(ctx context.Context, emit func(Event) error) error {
	defer t.Release()
	started := time.Now()
	s := t.svc

	if err := emit(startEvent(s.chat.Model(), string(t.phase))); err != nil {
		return err
	}

	// persistence outlives a dropped client
	persistCtx := context.WithoutCancel(ctx)
	t.saveMessage(persistCtx, models.RoleUser, t.text, "chat_user_message_saved")

	llmStart := time.Now()
	stream, err := s.chat.Stream(ctx, t.messages)
	if err != nil {
		if ctx.Err() != nil {
			return t.abort(persistCtx, emit, "", ctx.Err())
		}
		t.log.WithError(err).Error("chat_stream_failed")
		_ = emit(errorEvent(err.Error()))
		return err
	}
	defer stream.Close()
	t.log.WithFields(logrus.Fields{
		"elapsed_ms": time.Since(llmStart).Milliseconds(),
		"model":      s.chat.Model(),
	}).Info("chat_llm_stream_started")

	var reply strings.Builder
	for {
		if ctx.Err() != nil {
			return t.abort(persistCtx, emit, reply.String(), ctx.Err())
		}
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return t.abort(persistCtx, emit, reply.String(), ctx.Err())
			}
			t.log.WithError(err).Error("chat_stream_failed")
			_ = emit(errorEvent(err.Error()))
			return err
		}
		if fragment == "" {
			continue
		}
		if reply.Len() == 0 {
			t.log.WithField("elapsed_ms", time.Since(llmStart).Milliseconds()).Info("chat_llm_ttfb")
		}
		reply.WriteString(fragment)
		if err := emit(deltaEvent(fragment)); err != nil {
			return t.abort(persistCtx, emit, reply.String(), err)
		}
	}
	assistant := reply.String()
	t.log.WithFields(logrus.Fields{
		"elapsed_ms":      time.Since(llmStart).Milliseconds(),
		"assistant_chars": len(assistant),
	}).Info("chat_llm_stream_done")

	t.saveMessage(persistCtx, models.RoleAssistant, assistant, "chat_assistant_message_saved")

	if next, changed := phase.AfterGeneration(t.storedPhase, t.phase); changed {
		if err := s.store.UpdatePhase(persistCtx, t.session.ID, string(next)); err != nil {
			t.log.WithError(err).Warn("chat_phase_update_failed")
		} else {
			t.log.WithField("phase", next).Info("chat_phase_updated")
		}
	}

	if t.session.HasUser() {
		for _, ev := range t.writeMemory(ctx, assistant) {
			if err := emit(ev); err != nil {
				return err
			}
		}
	}

	t.log.WithField("elapsed_ms", time.Since(started).Milliseconds()).Info("chat_stream_done")
	return emit(metaEvent(EventDone))
}

func (t *Turn) saveMessage(ctx context.Context, role models.Role, content, event string) {
	start := time.Now()
	_, err := t.svc.store.AddMessage(ctx, models.Message{
		SessionID: t.session.ID,
		UserID:    t.session.UserID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		t.log.WithError(err).WithField("role", role).Error("chat_insert_message_failed")
		return
	}
	t.log.WithField("elapsed_ms", time.Since(start).Milliseconds()).Info(event)
}

// abort keeps whatever reply text arrived and skips the memory write.
func (t *Turn) abort(ctx context.Context, emit func(Event) error, partial string, cause error) error {
	if partial != "" {
		saveCtx, cancel := context.WithTimeout(ctx, detachedSaveLimit)
		t.saveMessage(saveCtx, models.RoleAssistant, partial, "chat_partial_message_saved")
		cancel()
	}
	t.log.WithError(cause).WithField("assistant_chars", len(partial)).Warn("chat_stream_aborted")
	_ = emit(errorEvent("stream aborted"))
	return errors.Join(ErrAborted, cause)
}

// writeMemory runs or queues the memory write and returns the events to report.
func (t *Turn) writeMemory(ctx context.Context, assistant string) []Event {
	s := t.svc
	if s.writer == nil {
		return nil
	}
	req := memory.WriteRequest{
		UserID:        t.session.UserID,
		SessionID:     t.session.ID,
		UserText:      t.text,
		AssistantText: assistant,
	}

	if s.opts.Background && s.queue != nil {
		log := t.log
		err := s.queue.Submit(worker.Job{
			Key:  req.UserID,
			Name: "memory_write",
			Run: func(jobCtx context.Context) error {
				start := time.Now()
				res, err := s.writer.Write(jobCtx, req)
				log.WithFields(logrus.Fields{
					"elapsed_ms":        time.Since(start).Milliseconds(),
					"saved":             res.Saved,
					"skipped_duplicate": res.SkippedDuplicate,
				}).Info("chat_memory_saved")
				return err
			},
		})
		if err != nil {
			t.log.WithError(err).Warn("chat_memory_dropped")
			return []Event{metaEvent(EventMemoryDropped)}
		}
		return []Event{metaEvent(EventMemoryQueued)}
	}

	start := time.Now()
	res, err := s.writer.Write(ctx, req)
	if err != nil {
		t.log.WithError(err).Warn("chat_memory_save_failed")
	}
	t.log.WithFields(logrus.Fields{
		"elapsed_ms":        time.Since(start).Milliseconds(),
		"saved":             res.Saved,
		"skipped_duplicate": res.SkippedDuplicate,
	}).Info("chat_memory_saved")
	return []Event{
		countEvent(EventMemorySaved, res.Saved),
		countEvent(EventMemorySkippedDuplicate, res.SkippedDuplicate),
	}
}
