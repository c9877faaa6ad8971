package session

import (
	"strconv"
	"time"

	"watchparty/internal/assistant"
	"watchparty/internal/metrics"
	"watchparty/internal/models"

	"github.com/rs/zerolog/log"
)

// ToggleHand 是举手状态机的唯一入口：Lowered 与 Raised 之间严格切换，方向由当前状态决定。
//
// 举手：翻转标志，广播 hand_raised 与全房间 pause；若带截图且助手可用，则在锁外发起分析。
// 放手：翻转标志，广播 hand_raised 与全房间 play，不调用助手。
// 状态机与广播在返回前完成，与助手结果无关。
func (r *Room) ToggleHand(id, screenshot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raised, err := r.presence.ToggleHand(id)
	if err != nil {
		return err
	}
	p, _ := r.presence.Get(id)
	now := time.Now()

	hr := models.HandRaised{ParticipantID: id, DisplayName: p.DisplayName, Raised: raised, Timestamp: now}
	pc := models.PlaybackControl{Action: models.ActionPlay, Reason: ReasonHandLowered, ByParticipantID: id, Timestamp: now}
	if raised {
		hr.Screenshot = screenshot
		pc.Action = models.ActionPause
		pc.Reason = ReasonHandRaised
	}
	r.broadcastLocked(Event{Type: EventHandRaised, Data: hr})
	r.broadcastLocked(Event{Type: EventPlaybackControl, Data: pc})
	metrics.HandTransitionsTotal.WithLabelValues(strconv.FormatBool(raised)).Inc()
	log.Info().Str("room", r.name).Str("participant_id", id).Bool("raised", raised).Msg("hand toggled")

	if !raised {
		return nil
	}
	if !r.opts.Gateway.Configured() {
		r.broadcastLocked(Event{Type: EventNewMessage, Data: infoMessage(id, assistant.ErrUnavailable)})
		return nil
	}
	if screenshot != "" {
		r.startAssistLocked(id, assistJob{
			participantID: id,
			system:        assistant.SystemFrame,
			userText:      assistant.FramePrompt,
			prompt:        assistant.FramePrompt,
			image:         screenshot,
			maxTokens:     assistant.FrameMaxTokens,
		})
	}
	return nil
}
