package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"watchparty/internal/assistant"
	"watchparty/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Send(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) Types() []EventType {
	var out []EventType
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	reply     string
	err       error
	delay     time.Duration
	gate      chan struct{}
	ignoreCtx bool
	requests  []assistant.Request
	active    int
	maxActive int
}

func (g *fakeGateway) Configured() bool { return true }

func (g *fakeGateway) Complete(ctx context.Context, req assistant.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if g.gate != nil {
		if g.ignoreCtx {
			<-g.gate
		} else {
			select {
			case <-g.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *fakeGateway) Requests() []assistant.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]assistant.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestRoom(gw assistant.Gateway) *Room {
	return NewRoom("default", Options{Gateway: gw, AssistantTimeout: time.Second})
}

func join(t *testing.T, r *Room, id string) *recorder {
	t.Helper()
	rec := &recorder{}
	if _, err := r.Join(id, rec); err != nil {
		t.Fatalf("Join(%s) error = %v", id, err)
	}
	return rec
}

func TestRoom_JoinSendsSnapshotAndRoster(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "participant-a")

	types := a.Types()
	if len(types) != 2 || types[0] != EventRoomState || types[1] != EventUserList {
		t.Fatalf("events on join = %v, want [room_state user_list]", types)
	}
	roster := a.Events()[1].Data.([]models.Participant)
	if len(roster) != 1 || roster[0].ID != "participant-a" || roster[0].HandRaised {
		t.Fatalf("roster = %+v, want [A lowered]", roster)
	}

	b := join(t, r, "participant-b")
	if got := a.OfType(EventUserList); len(got) != 2 {
		t.Fatalf("A saw %d roster updates, want 2", len(got))
	}
	if b.OfType(EventRoomState) == nil {
		t.Fatal("B did not receive room_state")
	}
}

func TestRoom_DoubleJoinRejected(t *testing.T) {
	r := newTestRoom(nil)
	join(t, r, "a")
	if _, err := r.Join("a", &recorder{}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("second Join() error = %v, want ErrInvariant", err)
	}
	if r.Online() != 1 {
		t.Fatalf("Online() = %d, want 1", r.Online())
	}
}

func TestRoom_LeaveTwiceBroadcastsOnce(t *testing.T) {
	r := newTestRoom(nil)
	join(t, r, "a")
	b := join(t, r, "b")
	b.Reset()

	r.Leave("a")
	r.Leave("a")

	updates := b.OfType(EventUserList)
	if len(updates) != 1 {
		t.Fatalf("roster updates after double leave = %d, want 1", len(updates))
	}
	roster := updates[0].Data.([]models.Participant)
	if len(roster) != 1 || roster[0].ID != "b" {
		t.Fatalf("roster = %+v, want [b]", roster)
	}
}

func TestRoom_ToggleHandAlternates(t *testing.T) {
	gw := &fakeGateway{reply: "unused"}
	r := newTestRoom(gw)
	a := join(t, r, "a")
	observer := join(t, r, "b")

	want := true
	for i := 0; i < 6; i++ {
		a.Reset()
		observer.Reset()
		if err := r.ToggleHand("a", ""); err != nil {
			t.Fatalf("ToggleHand() error = %v", err)
		}
		for name, rec := range map[string]*recorder{"requester": a, "observer": observer} {
			evts := rec.Events()
			if len(evts) != 2 {
				t.Fatalf("%s toggle %d events = %v, want hand_raised + playback_control", name, i, rec.Types())
			}
			hr := evts[0].Data.(models.HandRaised)
			pc := evts[1].Data.(models.PlaybackControl)
			if evts[0].Type != EventHandRaised || hr.Raised != want || hr.ParticipantID != "a" {
				t.Errorf("%s toggle %d hand_raised = %+v, want raised=%v", name, i, hr, want)
			}
			wantAction, wantReason := models.ActionPlay, ReasonHandLowered
			if want {
				wantAction, wantReason = models.ActionPause, ReasonHandRaised
			}
			if evts[1].Type != EventPlaybackControl || pc.Action != wantAction || pc.Reason != wantReason || pc.ByParticipantID != "a" {
				t.Errorf("%s toggle %d playback_control = %+v", name, i, pc)
			}
		}
		// The roster read right after the broadcast reflects the new flag.
		if roster := r.Roster(); roster[0].HandRaised != want {
			t.Fatalf("Roster() HandRaised = %v, want %v", roster[0].HandRaised, want)
		}
		want = !want
	}
	if n := len(gw.Requests()); n != 0 {
		t.Fatalf("assistant called %d times without screenshot", n)
	}
}

func TestRoom_ToggleHandUnknownParticipant(t *testing.T) {
	r := newTestRoom(nil)
	if err := r.ToggleHand("ghost", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ToggleHand(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestRoom_RaiseHandWithAssistant(t *testing.T) {
	gw := &fakeGateway{reply: "A cat is sleeping"}
	r := newTestRoom(gw)
	a := join(t, r, "a")
	if roster := r.Roster(); len(roster) != 1 || roster[0].ID != "a" {
		t.Fatalf("roster = %+v, want [a]", roster)
	}
	a.Reset()

	if err := r.ToggleHand("a", "data:image/png;base64,aGVsbG8="); err != nil {
		t.Fatal(err)
	}
	r.Wait()

	evts := a.Events()
	if len(evts) != 3 {
		t.Fatalf("events = %v, want 3", a.Types())
	}
	hr := evts[0].Data.(models.HandRaised)
	if evts[0].Type != EventHandRaised || !hr.Raised || hr.Screenshot == "" {
		t.Errorf("event 0 = %+v", evts[0])
	}
	pc := evts[1].Data.(models.PlaybackControl)
	if pc.Action != models.ActionPause || pc.Reason != ReasonHandRaised {
		t.Errorf("event 1 = %+v", pc)
	}
	msg := evts[2].Data.(models.ChatMessage)
	if evts[2].Type != EventNewMessage || msg.Kind != models.KindAssistantResponse ||
		msg.Body != "A cat is sleeping" || msg.RelatedParticipantID != "a" || msg.AuthorID != models.AssistantID {
		t.Errorf("event 2 = %+v", msg)
	}

	reqs := gw.Requests()
	if len(reqs) != 1 || reqs[0].Image == "" || reqs[0].System != assistant.SystemFrame {
		t.Fatalf("requests = %+v", reqs)
	}
	if n := r.Conversations().Len("a"); n != 2 {
		t.Fatalf("conversation len = %d, want 2", n)
	}

	// Lowering does not call the assistant and does not clear history.
	a.Reset()
	_ = r.ToggleHand("a", "data:image/png;base64,aGVsbG8=")
	r.Wait()
	if len(gw.Requests()) != 1 || len(a.Events()) != 2 {
		t.Fatalf("lowering produced %v and %d requests", a.Types(), len(gw.Requests()))
	}
	if n := r.Conversations().Len("a"); n != 2 {
		t.Fatalf("conversation len after lowering = %d, want 2", n)
	}
}

func TestRoom_RaiseHandAssistantTimeout(t *testing.T) {
	gw := &fakeGateway{reply: "too late", delay: time.Second}
	r := NewRoom("default", Options{Gateway: gw, AssistantTimeout: 50 * time.Millisecond})
	a := join(t, r, "a")
	b := join(t, r, "b")
	a.Reset()
	b.Reset()

	if err := r.ToggleHand("a", "aGVsbG8="); err != nil {
		t.Fatal(err)
	}
	// Pause is visible before the assistant resolves.
	if got := b.Types(); len(got) != 2 || got[1] != EventPlaybackControl {
		t.Fatalf("events before assistant resolves = %v", got)
	}
	r.Wait()

	for name, rec := range map[string]*recorder{"a": a, "b": b} {
		evts := rec.Events()
		if len(evts) != 3 {
			t.Fatalf("%s events = %v, want 3", name, rec.Types())
		}
		msg := evts[2].Data.(models.ChatMessage)
		if msg.Kind != models.KindInfo || msg.RelatedParticipantID != "a" {
			t.Errorf("%s info message = %+v", name, msg)
		}
	}
	if len(gw.Requests()) != 1 {
		t.Fatalf("requests = %d, want exactly 1 (no retry)", len(gw.Requests()))
	}
	if r.Conversations().Len("a") != 0 {
		t.Fatal("failed exchange must not be recorded")
	}
	if roster := r.Roster(); !roster[0].HandRaised {
		t.Fatal("hand must stay raised after assistant failure")
	}
}

func TestRoom_TimeoutWhenGatewayIgnoresContext(t *testing.T) {
	gw := &fakeGateway{reply: "late", gate: make(chan struct{}), ignoreCtx: true}
	defer close(gw.gate)
	r := NewRoom("default", Options{Gateway: gw, AssistantTimeout: 50 * time.Millisecond})
	a := join(t, r, "a")
	a.Reset()

	if err := r.ToggleHand("a", "aGVsbG8="); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(a.OfType(EventNewMessage)) == 1 })
	if msg := a.OfType(EventNewMessage)[0].Data.(models.ChatMessage); msg.Kind != models.KindInfo {
		t.Fatalf("message = %+v, want info", msg)
	}

	// The participant's slot is free again: a follow-up reaches the gateway.
	if err := r.AskAssistant("a", "still there?", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(gw.Requests()) == 2 })
	waitFor(t, func() bool { return len(a.OfType(EventNewMessage)) == 2 })
	r.Wait()
}

func TestRoom_RaiseHandUpstreamError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("502 from upstream")}
	r := newTestRoom(gw)
	a := join(t, r, "a")
	a.Reset()

	_ = r.ToggleHand("a", "aGVsbG8=")
	r.Wait()

	msgs := a.OfType(EventNewMessage)
	if len(msgs) != 1 || msgs[0].Data.(models.ChatMessage).Kind != models.KindInfo {
		t.Fatalf("messages = %+v, want a single info message", msgs)
	}
}

func TestRoom_RaiseHandAssistantUnavailable(t *testing.T) {
	r := newTestRoom(assistant.Unavailable{})
	a := join(t, r, "a")
	a.Reset()

	if err := r.ToggleHand("a", "aGVsbG8="); err != nil {
		t.Fatal(err)
	}
	types := a.Types()
	if len(types) != 3 || types[0] != EventHandRaised || types[1] != EventPlaybackControl || types[2] != EventNewMessage {
		t.Fatalf("events = %v", types)
	}
	if msg := a.Events()[2].Data.(models.ChatMessage); msg.Kind != models.KindInfo {
		t.Fatalf("message = %+v, want info", msg)
	}
}

func TestRoom_LateReplyAfterDisconnectDiscarded(t *testing.T) {
	gw := &fakeGateway{reply: "late", gate: make(chan struct{}), ignoreCtx: true}
	r := newTestRoom(gw)
	join(t, r, "a")
	b := join(t, r, "b")

	_ = r.ToggleHand("a", "aGVsbG8=")
	waitFor(t, func() bool { return len(gw.Requests()) == 1 })
	r.Leave("a")
	b.Reset()
	close(gw.gate)
	r.Wait()

	if msgs := b.OfType(EventNewMessage); len(msgs) != 0 {
		t.Fatalf("late reply was broadcast: %+v", msgs)
	}
	if r.Conversations().Len("a") != 0 {
		t.Fatal("late reply resurrected the departed participant's history")
	}
}

func TestRoom_ClearDuringInflightSkipsCommit(t *testing.T) {
	gw := &fakeGateway{reply: "answer", gate: make(chan struct{})}
	r := newTestRoom(gw)
	a := join(t, r, "a")
	r.Conversations().AppendExchange("a", "old q", "old r")

	if err := r.AskAssistant("a", "what now?", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(gw.Requests()) == 1 })
	if err := r.ClearConversation("a"); err != nil {
		t.Fatal(err)
	}
	close(gw.gate)
	r.Wait()

	if n := r.Conversations().Len("a"); n != 0 {
		t.Fatalf("conversation len = %d, want 0 after clear", n)
	}
	if len(a.OfType(EventConversationCleared)) != 1 {
		t.Fatal("clear was not acknowledged")
	}
	if len(a.OfType(EventNewMessage)) != 1 {
		t.Fatal("reply should still be mirrored to the room")
	}
}

func TestRoom_AskAssistantEchoAndMirror(t *testing.T) {
	gw := &fakeGateway{reply: "It is a cat."}
	r := newTestRoom(gw)
	a := join(t, r, "a")
	b := join(t, r, "b")
	a.Reset()
	b.Reset()

	if err := r.AskAssistant("a", "what animal?", "aGVsbG8="); err != nil {
		t.Fatal(err)
	}
	r.Wait()

	if got := a.Types(); len(got) != 2 || got[0] != EventConversation || got[1] != EventNewMessage {
		t.Fatalf("requester events = %v", got)
	}
	conv := a.Events()[0].Data.(models.Conversation)
	if len(conv.Turns) != 2 || conv.Turns[0].Content != "what animal?" || conv.Turns[1].Content != "It is a cat." {
		t.Fatalf("conversation = %+v", conv)
	}
	if got := b.Types(); len(got) != 1 || got[0] != EventNewMessage {
		t.Fatalf("observer events = %v, want only the mirrored reply", got)
	}
	if msg := b.Events()[0].Data.(models.ChatMessage); msg.Kind != models.KindAssistantResponse || msg.RelatedParticipantID != "a" {
		t.Fatalf("mirrored reply = %+v", msg)
	}

	// The follow-up carries the previous exchange without the image.
	if err := r.AskAssistant("a", "is it asleep?", ""); err != nil {
		t.Fatal(err)
	}
	r.Wait()
	reqs := gw.Requests()
	if len(reqs) != 2 || len(reqs[1].History) != 2 || reqs[1].Image != "" {
		t.Fatalf("follow-up request = %+v", reqs[1])
	}
	if reqs[1].History[0].Content != "what animal?" {
		t.Fatalf("follow-up history = %+v", reqs[1].History)
	}
}

func TestRoom_AskAssistantSerializedPerParticipant(t *testing.T) {
	gw := &fakeGateway{reply: "ok", delay: 20 * time.Millisecond}
	r := newTestRoom(gw)
	join(t, r, "a")

	for i := 0; i < 3; i++ {
		if err := r.AskAssistant("a", "question", ""); err != nil {
			t.Fatal(err)
		}
	}
	r.Wait()

	gw.mu.Lock()
	maxActive := gw.maxActive
	gw.mu.Unlock()
	if maxActive != 1 {
		t.Fatalf("max concurrent requests for one participant = %d, want 1", maxActive)
	}
	reqs := gw.Requests()
	for i, req := range reqs {
		if len(req.History) != 2*i {
			t.Errorf("request %d history = %d turns, want %d", i, len(req.History), 2*i)
		}
	}
}

func TestRoom_AskAssistantUnavailableIsPrivate(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "a")
	b := join(t, r, "b")
	a.Reset()
	b.Reset()

	if err := r.AskAssistant("a", "hello?", ""); err != nil {
		t.Fatal(err)
	}
	if len(a.OfType(EventNewMessage)) != 1 || len(b.Events()) != 0 {
		t.Fatalf("a=%v b=%v", a.Types(), b.Types())
	}
}

func TestRoom_SelectVideo(t *testing.T) {
	r := newTestRoom(nil)
	r.AddVideo(models.Video{ID: "v1"})
	a := join(t, r, "a")
	b := join(t, r, "b")
	a.Reset()
	b.Reset()

	if err := r.Dispatch("a", Inbound{Type: InSelectVideo, VideoID: "missing-id"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Dispatch(select missing) error = %v, want ErrNotFound", err)
	}
	if got := a.Types(); len(got) != 1 || got[0] != EventError {
		t.Fatalf("requester events = %v, want [error]", got)
	}
	if p := a.Events()[0].Data.(models.ErrorPayload); p.Code != "not_found" {
		t.Fatalf("error payload = %+v", p)
	}
	if len(b.Events()) != 0 {
		t.Fatalf("observer saw %v, want nothing", b.Types())
	}
	if r.Snapshot().CurrentVideoID != nil {
		t.Fatal("current video changed after failed select")
	}

	if err := r.Dispatch("a", Inbound{Type: InSelectVideo, VideoID: "v1"}); err != nil {
		t.Fatal(err)
	}
	if got := b.OfType(EventVideoChanged); len(got) != 1 || got[0].Data.(models.VideoChanged).VideoID != "v1" {
		t.Fatalf("video_changed = %+v", got)
	}

	c := join(t, r, "c")
	snap := c.Events()[0].Data.(models.RoomSnapshot)
	if snap.CurrentVideoID == nil || *snap.CurrentVideoID != "v1" {
		t.Fatalf("fresh join snapshot = %+v, want current v1", snap)
	}
}

func TestRoom_AddVideoBroadcasts(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "a")
	a.Reset()
	r.AddVideo(models.Video{ID: "v1"})
	if len(a.OfType(EventVideoAdded)) != 1 || len(r.Videos()) != 1 {
		t.Fatalf("events = %v videos = %v", a.Types(), r.Videos())
	}

	// A repeated id is not appended or announced again.
	r.AddVideo(models.Video{ID: "v1", OriginalName: "again.mp4"})
	if len(a.OfType(EventVideoAdded)) != 1 || len(r.Videos()) != 1 {
		t.Fatalf("after duplicate: events = %v videos = %v", a.Types(), r.Videos())
	}
}

func TestRoom_ChatMessage(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "abcdef-123")
	b := join(t, r, "b")
	a.Reset()
	b.Reset()

	if err := r.Dispatch("abcdef-123", Inbound{Type: InChatMessage, Message: "  hello  "}); err != nil {
		t.Fatal(err)
	}
	for _, rec := range []*recorder{a, b} {
		msgs := rec.OfType(EventNewMessage)
		if len(msgs) != 1 {
			t.Fatalf("messages = %v", rec.Types())
		}
		m := msgs[0].Data.(models.ChatMessage)
		if m.Body != "hello" || m.Kind != models.KindChat || m.DisplayName != "User-abcdef" || m.ID == "" {
			t.Errorf("message = %+v", m)
		}
	}

	a.Reset()
	b.Reset()
	if err := r.Dispatch("abcdef-123", Inbound{Type: InChatMessage, Message: "   "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty chat error = %v, want ErrValidation", err)
	}
	if len(b.Events()) != 0 || len(a.OfType(EventError)) != 1 {
		t.Fatalf("a=%v b=%v", a.Types(), b.Types())
	}
}

func TestRoom_SameParticipantOrdering(t *testing.T) {
	r := newTestRoom(nil)
	join(t, r, "a")
	b := join(t, r, "b")
	b.Reset()

	bodies := []string{"one", "two", "three", "four", "five"}
	for _, body := range bodies {
		_ = r.SendChat("a", body)
	}
	msgs := b.OfType(EventNewMessage)
	if len(msgs) != len(bodies) {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, m := range msgs {
		if got := m.Data.(models.ChatMessage).Body; got != bodies[i] {
			t.Errorf("message %d = %q, want %q", i, got, bodies[i])
		}
	}
}

func TestRoom_VideoControlRelay(t *testing.T) {
	r := newTestRoom(nil)
	join(t, r, "a")
	b := join(t, r, "b")
	b.Reset()

	if err := r.Dispatch("a", Inbound{Type: InVideoControl, Action: "seek", Time: 42.5}); err != nil {
		t.Fatal(err)
	}
	got := b.OfType(EventVideoControl)
	if len(got) != 1 {
		t.Fatalf("events = %v", b.Types())
	}
	if vc := got[0].Data.(models.VideoControl); vc.Action != models.ActionSeek || vc.Time != 42.5 || vc.UserID != "a" {
		t.Errorf("video_control = %+v", vc)
	}

	if err := r.Dispatch("a", Inbound{Type: InVideoControl, Action: "rewind"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown action error = %v", err)
	}
	if err := r.Dispatch("a", Inbound{Type: InVideoControl, Action: "seek", Time: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative time error = %v", err)
	}
}

func TestRoom_ConversationReplay(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "a")
	r.Conversations().AppendExchange("a", "q", "r")
	a.Reset()

	if err := r.Dispatch("a", Inbound{Type: InGetConversation}); err != nil {
		t.Fatal(err)
	}
	got := a.OfType(EventConversation)
	if len(got) != 1 || len(got[0].Data.(models.Conversation).Turns) != 2 {
		t.Fatalf("conversation replay = %+v", got)
	}
}

func TestRoom_DispatchUnknownType(t *testing.T) {
	r := newTestRoom(nil)
	a := join(t, r, "a")
	a.Reset()
	if err := r.Dispatch("a", Inbound{Type: "dance"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("Dispatch(unknown) error = %v", err)
	}
	if p := a.Events()[0].Data.(models.ErrorPayload); p.Code != "validation" {
		t.Fatalf("payload = %+v", p)
	}
}

type closingRecorder struct {
	recorder
	closed bool
}

func (c *closingRecorder) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestRoom_CloseStopsAssistantWork(t *testing.T) {
	gw := &fakeGateway{reply: "never", gate: make(chan struct{})}
	defer close(gw.gate)
	r := newTestRoom(gw)
	sink := &closingRecorder{}
	if _, err := r.Join("a", sink); err != nil {
		t.Fatal(err)
	}

	if err := r.AskAssistant("a", "first", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(gw.Requests()) == 1 })

	r.Close()
	r.Close()
	// The in-flight call is cancelled, so Wait returns without the gate opening.
	r.Wait()

	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Error("Close() did not close the member's sink")
	}

	if err := r.AskAssistant("a", "second", ""); err != nil {
		t.Fatal(err)
	}
	_ = r.ToggleHand("a", "aGVsbG8=")
	r.Wait()
	if n := len(gw.Requests()); n != 1 {
		t.Fatalf("gateway requests after Close() = %d, want 1", n)
	}
	if _, err := r.Join("b", &recorder{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Join() after Close() error = %v, want ErrClosed", err)
	}
}

func TestRoom_LeaveDropsConversation(t *testing.T) {
	r := newTestRoom(nil)
	join(t, r, "a")
	r.Conversations().AppendExchange("a", "q", "r")
	r.Leave("a")
	if r.Conversations().Len("a") != 0 {
		t.Fatal("history survived disconnect")
	}
}

func TestRoom_ConcurrentParticipants(t *testing.T) {
	gw := &fakeGateway{reply: "ok", delay: 5 * time.Millisecond}
	r := newTestRoom(gw)
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	for _, id := range ids {
		join(t, r, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				_ = r.ToggleHand(id, "aGVsbG8=")
				_ = r.SendChat(id, "hi")
			}
			r.Leave(id)
		}(id)
	}
	wg.Wait()
	r.Wait()

	if r.Online() != 0 {
		t.Fatalf("Online() = %d, want 0", r.Online())
	}
	for _, id := range ids {
		if r.Conversations().Len(id) != 0 {
			t.Fatalf("history for %s survived disconnect", id)
		}
	}
}
