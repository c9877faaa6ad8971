package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"watchparty/internal/assistant"
	"watchparty/internal/metrics"
	"watchparty/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const assistantName = "AI Assistant"

type assistJob struct {
	participantID string
	system        string
	// userText 写入对话历史；prompt 实际发给助手，两者可能不同。
	userText  string
	prompt    string
	image     string
	maxTokens int
	// private 为 true 时，错误提示只发给请求方，并额外私发对话窗口。
	private bool
}

// AskAssistant 处理参与者直接向助手提问：回复私发为对话更新，同时以 assistant-response 镜像到全房间。
func (r *Room) AskAssistant(id, text, screenshot string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxQuestionRunes {
		return fmt.Errorf("%w: message too long", ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	if !r.opts.Gateway.Configured() {
		r.sendLocked(id, Event{Type: EventNewMessage, Data: infoMessage(id, assistant.ErrUnavailable)})
		return nil
	}
	r.startAssistLocked(id, assistJob{
		participantID: id,
		system:        assistant.SystemVideoChat,
		userText:      text,
		prompt:        assistant.QuestionPrompt(text, screenshot != ""),
		image:         screenshot,
		maxTokens:     assistant.ChatMaxTokens,
		private:       true,
	})
	return nil
}

func (r *Room) startAssistLocked(id string, job assistJob) {
	m := r.members[id]
	if m == nil || r.closed {
		return
	}
	r.inflight.Add(1)
	go r.runAssist(m.ctx, job)
}

// runAssist 在房间锁之外执行：排队占用参与者槽位、读取窗口、调用助手，再回到锁内提交。
func (r *Room) runAssist(ctx context.Context, job assistJob) {
	defer r.inflight.Done()

	release, err := r.convos.Acquire(ctx, job.participantID)
	if err != nil {
		r.discard(job.participantID)
		return
	}
	defer release()

	window, epoch := r.convos.window(job.participantID, r.opts.HistoryTurns)
	text, err := assistant.Call(ctx, r.opts.Gateway, r.opts.AssistantTimeout, assistant.Request{
		System:    job.system,
		History:   window,
		Text:      job.prompt,
		Image:     job.image,
		MaxTokens: job.maxTokens,
	})
	r.finishAssist(job, epoch, text, err)
}

func (r *Room) finishAssist(job assistJob, epoch uint64, text string, err error) {
	id := job.participantID
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		r.convos.Drop(id)
		metrics.AssistantDiscardedTotal.Inc()
		log.Debug().Str("room", r.name).Str("participant_id", id).Msg("assistant reply discarded: participant left")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("room", r.name).Str("participant_id", id).Msg("assistant request failed")
		evt := Event{Type: EventNewMessage, Data: infoMessage(id, err)}
		if job.private {
			r.sendLocked(id, evt)
		} else {
			r.broadcastLocked(evt)
		}
		return
	}

	if !r.convos.Commit(id, epoch, job.userText, text) {
		metrics.AssistantDiscardedTotal.Inc()
		log.Debug().Str("room", r.name).Str("participant_id", id).Msg("assistant exchange not recorded: conversation cleared")
	}
	if job.private {
		r.sendLocked(id, Event{Type: EventConversation, Data: models.Conversation{
			ParticipantID: id,
			Turns:         r.convos.WindowFor(id, r.convos.Capacity()),
		}})
	}
	r.broadcastLocked(Event{Type: EventNewMessage, Data: models.ChatMessage{
		ID:                   uuid.NewString(),
		AuthorID:             models.AssistantID,
		DisplayName:          assistantName,
		Body:                 text,
		Timestamp:            time.Now(),
		Kind:                 models.KindAssistantResponse,
		RelatedParticipantID: id,
	}})
}

// discard 处理参与者在排队期间离开的情况，确保不会留下复活的历史。
func (r *Room) discard(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		r.convos.Drop(id)
		metrics.AssistantDiscardedTotal.Inc()
	}
}

func infoMessage(relatedTo string, err error) models.ChatMessage {
	var body string
	switch {
	case errors.Is(err, assistant.ErrUnavailable):
		body = "AI service is not configured. Please set up assistant credentials to enable AI features."
	case errors.Is(err, assistant.ErrTimeout):
		body = "The AI assistant took too long to respond. Please try again."
	default:
		body = "The AI assistant could not process this request right now. Please try again later."
	}
	return models.ChatMessage{
		ID:                   uuid.NewString(),
		AuthorID:             models.AssistantID,
		DisplayName:          assistantName,
		Body:                 body,
		Timestamp:            time.Now(),
		Kind:                 models.KindInfo,
		RelatedParticipantID: relatedTo,
	}
}
