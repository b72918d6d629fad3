package console_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/advisor-console/internal/model/audit"
	"github.com/zhouzirui/advisor-console/internal/model/chat"
	voicemodel "github.com/zhouzirui/advisor-console/internal/model/voice"
	"github.com/zhouzirui/advisor-console/internal/service/backend"
	"github.com/zhouzirui/advisor-console/internal/service/backend/backendtest"
	"github.com/zhouzirui/advisor-console/internal/service/console"
	"github.com/zhouzirui/advisor-console/internal/service/voice"
)

const (
	chatRoute    = "POST /chat/{sessionID}"
	auditRoute   = "GET /audit"
	profileRoute = "GET /audit/latest-profile"
)

// fakeSession stands in for the voice agent and lets tests fire callbacks.
type fakeSession struct {
	mu       sync.Mutex
	status   voicemodel.Status
	speaking bool
	agentID  string
	cb       voice.Callbacks
	starts   int
	ends     int
	startErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{status: voicemodel.StatusIdle}
}

func (f *fakeSession) Start(_ context.Context, agentID string, cb voice.Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		f.status = voicemodel.StatusDisconnected
		return f.startErr
	}
	f.agentID = agentID
	f.cb = cb
	f.status = voicemodel.StatusConnected
	return nil
}

func (f *fakeSession) End(context.Context) error {
	f.mu.Lock()
	f.ends++
	f.status = voicemodel.StatusDisconnected
	cb := f.cb
	f.mu.Unlock()

	if cb.OnDisconnect != nil {
		cb.OnDisconnect()
	}
	return nil
}

func (f *fakeSession) Status() voicemodel.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSession) Speaking() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaking
}

func (f *fakeSession) say(source, text string) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnMessage(voicemodel.Transcript{Source: source, Message: text})
}

func newController(t *testing.T, session voice.Session, mic voice.Microphone) (*console.Controller, *backendtest.Server) {
	t.Helper()

	srv := backendtest.New()
	t.Cleanup(srv.Close)

	ctrl := console.New(backend.NewClient(srv.URL, 0), session, mic, console.Options{
		AgentID:   "agent_test",
		SessionID: "session-test",
	})
	t.Cleanup(ctrl.Close)
	return ctrl, srv
}

func entries(n int) []audit.Entry {
	out := make([]audit.Entry, n)
	for i := range out {
		out[i] = audit.Entry{
			ID:        fmt.Sprintf("e%d", i),
			Type:      "chat_response",
			Timestamp: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339),
		}
	}
	return out
}

func TestSendIgnoresBlankInput(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		if ctrl.Send(context.Background(), input) {
			t.Fatalf("expected blank input %q to be ignored", input)
		}
		select {
		case <-ctrl.SendAsync(input):
		default:
			t.Fatalf("expected SendAsync(%q) to return a closed channel", input)
		}
	}

	if got := len(ctrl.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
	if got := srv.Calls(chatRoute); got != 0 {
		t.Fatalf("expected no chat calls, got %d", got)
	}
	if ctrl.Loading() {
		t.Fatal("loading must stay false")
	}
}

func TestSendAppendsUserThenReply(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)

	if !ctrl.Send(context.Background(), "  I am 35 years old ") {
		t.Fatal("expected send to proceed")
	}

	msgs := ctrl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleUser || msgs[0].Text != "  I am 35 years old " {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != chat.RoleAssistant || msgs[1].Text != "echo:   I am 35 years old " {
		t.Fatalf("unexpected reply: %+v", msgs[1])
	}
	if got := srv.Messages("session-test"); len(got) != 1 {
		t.Fatalf("expected backend to receive one message, got %v", got)
	}
	if ctrl.Loading() {
		t.Fatal("loading must be false after settle")
	}
}

func TestSendFailureAppendsErrorMessage(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)
	srv.SetFailures(false, false, true)

	ctrl.Send(context.Background(), "hello")

	msgs := ctrl.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user message plus error, got %d", len(msgs))
	}

	var assistant []chat.Message
	for _, m := range msgs {
		if m.Role == chat.RoleAssistant {
			assistant = append(assistant, m)
		}
	}
	if len(assistant) != 1 {
		t.Fatalf("expected exactly one assistant message, got %d", len(assistant))
	}
	if !strings.HasPrefix(assistant[0].Text, "Error: ") || !strings.Contains(assistant[0].Text, "502") {
		t.Fatalf("unexpected error message: %q", assistant[0].Text)
	}
	if ctrl.Loading() {
		t.Fatal("loading must be false after a failed send")
	}
}

func TestLoadingWhileReplyPending(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)
	release := srv.HoldChat()
	t.Cleanup(release)

	if ctrl.Loading() {
		t.Fatal("loading must be false before sending")
	}

	done := ctrl.SendAsync("first")
	if !ctrl.Loading() {
		t.Fatal("loading must be true once the send started")
	}
	if got := len(ctrl.Messages()); got != 1 {
		t.Fatalf("expected the user message immediately, got %d messages", got)
	}

	second := ctrl.SendAsync("second")
	release()
	<-done
	<-second

	if ctrl.Loading() {
		t.Fatal("loading must be false once every send settled")
	}
	if got := len(ctrl.Messages()); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}
}

func TestToggleAuditFetchesOncePerOpen(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)
	ctx := context.Background()

	if !ctrl.ToggleAudit(ctx) {
		t.Fatal("expected panel to open")
	}
	if srv.Calls(auditRoute) != 1 || srv.Calls(profileRoute) != 1 {
		t.Fatalf("expected one fetch each, got audit=%d profile=%d", srv.Calls(auditRoute), srv.Calls(profileRoute))
	}

	if ctrl.ToggleAudit(ctx) {
		t.Fatal("expected panel to close")
	}
	if srv.Calls(auditRoute) != 1 || srv.Calls(profileRoute) != 1 {
		t.Fatal("closing the panel must not fetch")
	}

	ctrl.ToggleAudit(ctx)
	if srv.Calls(auditRoute) != 2 || srv.Calls(profileRoute) != 2 {
		t.Fatalf("expected a second fetch each, got audit=%d profile=%d", srv.Calls(auditRoute), srv.Calls(profileRoute))
	}
}

func TestAuditViewNewestFirstCapped(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)
	srv.SetAuditLog(audit.Log{TotalEntries: 25, Model: "llama", Server: "hetzner", Entries: entries(25)})
	srv.SetLatestProfile(audit.LatestProfile{Result: &audit.ProfileResult{Profile: "Moderate", Score: "45/75"}})

	ctrl.ToggleAudit(context.Background())

	view := ctrl.AuditView()
	if !view.Visible || !view.Loaded {
		t.Fatalf("expected a visible loaded view: %+v", view)
	}
	if len(view.Entries) != console.DefaultEntryLimit {
		t.Fatalf("expected %d entries, got %d", console.DefaultEntryLimit, len(view.Entries))
	}
	if view.Entries[0].ID != "e24" || view.Entries[len(view.Entries)-1].ID != "e5" {
		t.Fatalf("unexpected order: first=%s last=%s", view.Entries[0].ID, view.Entries[len(view.Entries)-1].ID)
	}
	if view.TotalEntries != 25 || view.Model != "llama" || view.Server != "hetzner" {
		t.Fatalf("unexpected header: %+v", view)
	}
	if view.Profile == nil || view.Profile.Profile != "Moderate" {
		t.Fatalf("expected latest profile, got %+v", view.Profile)
	}
}

func TestAuditViewLimitNeverExceedsCap(t *testing.T) {
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	srv.SetAuditLog(audit.Log{TotalEntries: 30, Entries: entries(30)})

	cases := []struct {
		limit int
		want  int
	}{
		{limit: 50, want: console.DefaultEntryLimit},
		{limit: 5, want: 5},
		{limit: -1, want: console.DefaultEntryLimit},
	}
	for _, tc := range cases {
		ctrl := console.New(backend.NewClient(srv.URL, 0), nil, nil, console.Options{SessionID: "session-test", EntryLimit: tc.limit})
		t.Cleanup(ctrl.Close)

		ctrl.ToggleAudit(context.Background())
		view := ctrl.AuditView()
		if len(view.Entries) != tc.want {
			t.Fatalf("limit %d: expected %d entries, got %d", tc.limit, tc.want, len(view.Entries))
		}
		if view.Entries[0].ID != "e29" {
			t.Fatalf("limit %d: expected newest first, got %s", tc.limit, view.Entries[0].ID)
		}
	}
}

func TestRefreshAuditFailureKeepsPreviousView(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)
	srv.SetAuditLog(audit.Log{TotalEntries: 2, Entries: entries(2)})
	ctx := context.Background()

	if err := ctrl.RefreshAudit(ctx); err != nil {
		t.Fatalf("RefreshAudit err: %v", err)
	}

	srv.SetAuditLog(audit.Log{TotalEntries: 5, Entries: entries(5)})
	srv.SetLatestProfile(audit.LatestProfile{Result: &audit.ProfileResult{Profile: "Aggressive"}})
	srv.SetFailures(false, true, false)

	err := ctrl.RefreshAudit(ctx)
	if !errors.Is(err, backend.ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}

	view := ctrl.AuditView()
	if view.TotalEntries != 2 || len(view.Entries) != 2 {
		t.Fatalf("audit log must not be partially updated: %+v", view)
	}
	if view.Profile != nil {
		t.Fatalf("profile must not be updated: %+v", view.Profile)
	}
}

func TestAuditViewBeforeFetch(t *testing.T) {
	ctrl, _ := newController(t, nil, nil)

	view := ctrl.AuditView()
	if view.Visible || view.Loaded || len(view.Entries) != 0 || view.Profile != nil {
		t.Fatalf("unexpected initial view: %+v", view)
	}
}

func TestStartCallRoutesTranscripts(t *testing.T) {
	session := newFakeSession()
	ctrl, _ := newController(t, session, voice.StaticMicrophone{Granted: true})
	ctx := context.Background()

	ctrl.StartCall(ctx)
	if session.agentID != "agent_test" {
		t.Fatalf("expected agent id to be passed, got %q", session.agentID)
	}
	if ctrl.Status() != voicemodel.StatusConnected {
		t.Fatalf("expected connected, got %s", ctrl.Status())
	}

	session.say("ai", "What is your investment horizon?")
	session.say("user", "Ten years")
	session.say("agent", "Thanks")

	msgs := ctrl.Messages()
	want := []chat.Role{chat.RoleAssistant, chat.RoleUser, chat.RoleAssistant}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Fatalf("message %d: expected role %s, got %s", i, role, msgs[i].Role)
		}
	}

	ctrl.EndCall(ctx)
	if session.ends != 1 {
		t.Fatalf("expected End to be called once, got %d", session.ends)
	}
	if ctrl.Status() != voicemodel.StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", ctrl.Status())
	}
}

func TestStartCallFailuresAreDropped(t *testing.T) {
	t.Run("microphone denied", func(t *testing.T) {
		session := newFakeSession()
		ctrl, _ := newController(t, session, voice.StaticMicrophone{})

		ctrl.StartCall(context.Background())
		if session.starts != 0 {
			t.Fatal("session must not start without the microphone")
		}
		if ctrl.Status() != voicemodel.StatusIdle {
			t.Fatalf("expected idle, got %s", ctrl.Status())
		}
	})

	t.Run("session error", func(t *testing.T) {
		session := newFakeSession()
		session.startErr = errors.New("dial refused")
		ctrl, _ := newController(t, session, voice.StaticMicrophone{Granted: true})

		ctrl.StartCall(context.Background())
		if session.starts != 1 {
			t.Fatalf("expected one attempt, got %d", session.starts)
		}
		if got := len(ctrl.Messages()); got != 0 {
			t.Fatalf("failures must not add messages, got %d", got)
		}
	})

	t.Run("no session", func(t *testing.T) {
		ctrl, _ := newController(t, nil, nil)
		ctrl.StartCall(context.Background())
		ctrl.EndCall(context.Background())
		if ctrl.Status() != voicemodel.StatusIdle || ctrl.Speaking() {
			t.Fatal("expected idle console without a voice session")
		}
	})
}

func TestSubscribeReceivesEvents(t *testing.T) {
	ctrl, _ := newController(t, nil, nil)
	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctrl.Send(context.Background(), "hi")

	var types []console.EventType
	timeout := time.After(2 * time.Second)
	for len(types) < 4 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("expected 4 events, got %v", types)
		}
	}

	want := []console.EventType{console.EventMessage, console.EventLoading, console.EventMessage, console.EventLoading}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("unexpected event order: %v", types)
		}
	}
}

func TestMessageEventsFollowLogOrder(t *testing.T) {
	session := newFakeSession()
	ctrl, _ := newController(t, session, voice.StaticMicrophone{Granted: true})
	ctrl.StartCall(context.Background())

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	const n = 24
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session.say("user", fmt.Sprintf("line %d", i))
		}(i)
	}
	wg.Wait()

	var got []string
	for len(got) < n {
		select {
		case ev := <-events:
			if msg, ok := ev.Data.(chat.Message); ok && ev.Type == console.EventMessage {
				got = append(got, msg.Text)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d message events, got %d", n, len(got))
		}
	}

	msgs := ctrl.Messages()
	for i := range got {
		if got[i] != msgs[i].Text {
			t.Fatalf("event %d is %q but log has %q", i, got[i], msgs[i].Text)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	ctrl, _ := newController(t, nil, nil)
	events, unsubscribe := ctrl.Subscribe()
	unsubscribe()
	unsubscribe()

	if _, ok := <-events; ok {
		t.Fatal("expected closed channel")
	}
	ctrl.Send(context.Background(), "still works")
}

func TestAutoRefreshWhileVisible(t *testing.T) {
	ctrl, srv := newController(t, nil, nil)

	if err := ctrl.StartAutoRefresh("not a schedule"); err == nil {
		t.Fatal("expected schedule parse error")
	}

	if err := ctrl.StartAutoRefresh("@every 1s"); err != nil {
		t.Fatalf("StartAutoRefresh err: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)
	if got := srv.Calls(auditRoute); got != 0 {
		t.Fatalf("hidden panel must not refresh, got %d calls", got)
	}

	ctrl.ToggleAudit(context.Background())
	deadline := time.Now().Add(3 * time.Second)
	for srv.Calls(auditRoute) < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := srv.Calls(auditRoute); got < 2 {
		t.Fatalf("expected scheduled refresh, got %d calls", got)
	}
	ctrl.StopAutoRefresh()
}
