package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/messaging"
	"github.com/inmolabs/asesorbot/internal/models"
	"github.com/inmolabs/asesorbot/internal/store"
)

// mockMessenger records outbound sends for assertions.
type mockMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	messages chan models.Message
	receipts chan models.Receipt
	sendErr  error
}

type sentMessage struct {
	To   string
	Body string
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{
		messages: make(chan models.Message, 10),
		receipts: make(chan models.Receipt, 10),
	}
}

func (m *mockMessenger) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return messaging.CanonicalizePhoneNumber(recipient)
}

func (m *mockMessenger) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockMessenger) Start(ctx context.Context) error { return nil }
func (m *mockMessenger) Stop() error                     { return nil }
func (m *mockMessenger) Messages() <-chan models.Message { return m.messages }
func (m *mockMessenger) Receipts() <-chan models.Receipt { return m.receipts }

func (m *mockMessenger) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

const domainClassification = `{"language":"es","is_domain_query":true}`

func newTestOrchestrator(gen genai.Generator, st store.Store, opts ...Option) (*Orchestrator, *mockMessenger) {
	msgr := newMockMessenger()
	base := []Option{WithDelayFn(func(string) time.Duration { return 0 })}
	o := NewOrchestrator(msgr, st, gen, append(base, opts...)...)
	return o, msgr
}

func TestHandleMessageFirstContactSendsWelcome(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification, "¡Con gusto te ayudo!"}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", PushName: "Ana", Body: "hola"})

	sent := msgr.sentMessages()
	if len(sent) != 3 {
		t.Fatalf("expected welcome, generated reply and follow-up, got %d sends: %+v", len(sent), sent)
	}
	if !strings.Contains(sent[0].Body, "Ana") {
		t.Errorf("welcome should be personalized, got %q", sent[0].Body)
	}
	if sent[1].Body != "¡Con gusto te ayudo!" {
		t.Errorf("expected generated reply, got %q", sent[1].Body)
	}
	if !strings.Contains(sent[2].Body, "algo más") {
		t.Errorf("expected follow-up question after the reply, got %q", sent[2].Body)
	}
}

func TestHandleMessageDomainReplyAwaitsFollowup(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification, "Tenemos varias opciones."}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "hola"})

	if got := o.sessions.Get("5218111111111").Pending; got != PendingFollowup {
		t.Fatalf("after a generated reply the session should await a follow-up answer, got %q", got)
	}

	// the follow-up answer is consumed as yes/no, not routed as a new query
	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "sí"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "qué más te gustaría saber") {
		t.Errorf("affirmative answer should get the continue reply, got %q", last)
	}
	if len(gen.Calls) != 2 {
		t.Errorf("the follow-up answer should not reach the generator, got %d calls", len(gen.Calls))
	}
}

func TestHandleMessageStaticBlacklistIgnored(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore(),
		WithStaticBlacklist([]string{"5218100000000"}))

	o.HandleMessage(context.Background(), models.Message{From: "5218100000000", Body: "hola"})

	if sent := msgr.sentMessages(); len(sent) != 0 {
		t.Errorf("blacklisted sender should get no replies, got %+v", sent)
	}
	if len(gen.Calls) != 0 {
		t.Error("blacklisted messages should not reach the generator")
	}
}

func TestHandleMessageStoreBlacklistIgnored(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.AddBlacklistedContact(context.Background(), "5218100000001"); err != nil {
		t.Fatalf("failed to seed blacklist: %v", err)
	}
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, st)

	o.HandleMessage(context.Background(), models.Message{From: "5218100000001", Body: "hola"})

	if sent := msgr.sentMessages(); len(sent) != 0 {
		t.Errorf("store-blacklisted sender should get no replies, got %+v", sent)
	}
}

func TestHandleMessageEmptyBodyIgnored(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "   "})

	if sent := msgr.sentMessages(); len(sent) != 0 {
		t.Errorf("empty message should be ignored, got %+v", sent)
	}
}

func TestHandleMessageInventoryMatchShortCircuitsGeneration(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "busco casa en escobedo"})

	sent := msgr.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected welcome plus results, got %d sends", len(sent))
	}
	if !strings.Contains(sent[1].Body, "VILLAS DE ANAHUAC") {
		t.Errorf("results should include the Escobedo house, got %q", sent[1].Body)
	}
	// only the classifier should have been called, not the reply generator
	if len(gen.Calls) != 1 {
		t.Errorf("expected 1 generator call (classification only), got %d", len(gen.Calls))
	}
}

func TestHandleMessagePriceFilteredMatch(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "algo de menos de 2 millones"})

	sent := msgr.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected welcome plus results, got %d sends", len(sent))
	}
	if !strings.Contains(sent[1].Body, "Zona Universidad") {
		t.Errorf("expected only the 1.8M apartment, got %q", sent[1].Body)
	}
	if strings.Contains(sent[1].Body, "VILLAS DE ANAHUAC") {
		t.Errorf("4.75M listing should be filtered out, got %q", sent[1].Body)
	}
}

func TestHandleMessageFollowupYes(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "casa en escobedo"})
	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "sí"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "qué más te gustaría saber") {
		t.Errorf("affirmative follow-up should get the continue reply, got %q", last)
	}
}

func TestHandleMessageFollowupNo(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "casa en escobedo"})
	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "no gracias"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "Gracias por tu visita") {
		t.Errorf("negative follow-up should get the closing reply, got %q", last)
	}
}

func TestHandleMessageFollowupNewQueryReprocessed(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "casa en escobedo"})
	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "quintas en zuazua"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "Zuazua") {
		t.Errorf("non-yes/no follow-up should be handled as a new query, got %q", last)
	}
}

func TestHandleMessageStaleFollowupReset(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	gen := &genai.MockGenerator{Responses: []string{domainClassification, "Claro, dime más."}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore(), WithClock(clock))
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "casa en escobedo"})
	current = current.Add(31 * time.Minute)
	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "sí"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if strings.Contains(last, "qué más te gustaría saber") {
		t.Errorf("a stale follow-up should not consume a yes answer, got %q", last)
	}
}

func TestHandleMessageEscalation(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{
		`{"language":"es","is_domain_query":false,"needs_human":true}`,
	}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "quiero hablar con una persona"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "asesor humano") {
		t.Errorf("escalation should send the handoff reply, got %q", last)
	}
}

func TestHandleMessageCapabilities(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{
		`{"language":"es","is_about_capabilities":true}`,
	}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "¿qué puedes hacer?"})

	sent := msgr.sentMessages()
	if len(sent) != 3 {
		t.Fatalf("expected welcome, capabilities and follow-up, got %d sends: %+v", len(sent), sent)
	}
	if !strings.Contains(sent[1].Body, "buscar propiedades") {
		t.Errorf("capability question should send the capabilities reply, got %q", sent[1].Body)
	}
	if !strings.Contains(sent[2].Body, "algo más") {
		t.Errorf("capabilities reply should be followed by the follow-up question, got %q", sent[2].Body)
	}
	if got := o.sessions.Get("5218111111111").Pending; got != PendingFollowup {
		t.Errorf("capabilities branch should await a follow-up answer, got %q", got)
	}
}

func TestHandleMessageGenerationFailure(t *testing.T) {
	gen := &genai.MockGenerator{Err: errors.New("api down")}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	o.HandleMessage(context.Background(), models.Message{From: "5218111111111", Body: "hola"})

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "tuve un problema") {
		t.Errorf("generation failure should send the apology, got %q", last)
	}

	// user turn recorded, no assistant turn
	turns := o.history.History("5218111111111")
	if len(turns) != 1 || turns[0].Role != models.RoleUser {
		t.Errorf("history after failed generation should hold only the user turn, got %+v", turns)
	}
}

func TestHandleMessageImageBranch(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	msg := models.Message{
		From:      "5218111111111",
		Body:      "",
		HasMedia:  true,
		MediaType: "image/jpeg",
		Download: func(ctx context.Context) ([]byte, string, error) {
			return []byte{0xff, 0xd8}, "image/jpeg", nil
		},
	}
	o.HandleMessage(context.Background(), msg)

	sent := msgr.sentMessages()
	if len(sent) != 3 {
		t.Fatalf("expected welcome, analyzing notice and result, got %d sends: %+v", len(sent), sent)
	}
	if !strings.Contains(sent[1].Body, "analizando la imagen") {
		t.Errorf("expected analyzing notice, got %q", sent[1].Body)
	}
	if !strings.Contains(sent[2].Body, "He analizado la imagen") {
		t.Errorf("expected analysis result, got %q", sent[2].Body)
	}
}

func TestHandleMessageImageDownloadFailureFallsBackToCaption(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	msg := models.Message{
		From:      "5218111111111",
		Body:      "casa en escobedo",
		HasMedia:  true,
		MediaType: "image/jpeg",
		Download: func(ctx context.Context) ([]byte, string, error) {
			return nil, "", errors.New("download failed")
		},
	}
	o.HandleMessage(context.Background(), msg)

	sent := msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "VILLAS DE ANAHUAC") {
		t.Errorf("failed download with caption should process the caption, got %q", last)
	}
}

func TestHandleMessageAdminBlacklistCommand(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, st, WithAdminNumbers([]string{"5218199999999"}))
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218199999999", Body: "/blacklist add 5218100000002"})

	blocked, err := st.IsBlacklisted(ctx, "5218100000002")
	if err != nil {
		t.Fatalf("blacklist check failed: %v", err)
	}
	if !blocked {
		t.Error("admin command should add the number to the blacklist")
	}
	sent := msgr.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "agregado") {
		t.Errorf("admin should get a confirmation, got %+v", sent)
	}
}

func TestHandleMessageAdminCommandRequiresAdmin(t *testing.T) {
	st := store.NewInMemoryStore()
	gen := &genai.MockGenerator{Responses: []string{domainClassification, "respuesta"}}
	o, msgr := newTestOrchestrator(gen, st)
	ctx := context.Background()

	o.HandleMessage(ctx, models.Message{From: "5218111111111", Body: "/blacklist add 5218100000003"})

	blocked, _ := st.IsBlacklisted(ctx, "5218100000003")
	if blocked {
		t.Error("non-admin senders must not run admin commands")
	}
	if sent := msgr.sentMessages(); len(sent) != 0 {
		t.Errorf("command from a non-admin should be dropped silently, got %+v", sent)
	}
	if len(gen.Calls) != 0 {
		t.Errorf("command from a non-admin should never reach the generator, got %d calls", len(gen.Calls))
	}
}

func TestTriggerWelcome(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	if err := o.TriggerWelcome(context.Background(), "+52 81 2222 3333", "Luis"); err != nil {
		t.Fatalf("TriggerWelcome failed: %v", err)
	}

	sent := msgr.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one welcome send, got %d", len(sent))
	}
	if sent[0].To != "528122223333" {
		t.Errorf("recipient should be canonicalized, got %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "Luis") {
		t.Errorf("welcome should carry the name, got %q", sent[0].Body)
	}
	if got := o.sessions.Get("528122223333").Name; got != "Luis" {
		t.Errorf("registered name should be stored on the session, got %q", got)
	}
}

func TestTriggerWelcomeWithoutNameStartsRegistration(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())
	ctx := context.Background()

	if err := o.TriggerWelcome(ctx, "5218122223333", ""); err != nil {
		t.Fatalf("TriggerWelcome failed: %v", err)
	}

	sent := msgr.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("expected welcome plus name question, got %d sends: %+v", len(sent), sent)
	}
	if !strings.Contains(sent[1].Body, "con quién tengo el gusto") {
		t.Errorf("nameless registration should ask for the name, got %q", sent[1].Body)
	}
	if got := o.sessions.Get("5218122223333").Pending; got != PendingRegistration {
		t.Fatalf("session should await the registration field, got %q", got)
	}

	o.HandleMessage(ctx, models.Message{From: "5218122223333", Body: "Me llamo Carlos"})

	session := o.sessions.Get("5218122223333")
	if session.Name != "Carlos" {
		t.Errorf("expected captured name Carlos, got %q", session.Name)
	}
	if session.Pending != PendingNone {
		t.Errorf("registration should complete the pending flow, got %q", session.Pending)
	}
	sent = msgr.sentMessages()
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "Mucho gusto Carlos") {
		t.Errorf("expected personalized acknowledgment, got %q", last)
	}
	if len(gen.Calls) != 0 {
		t.Errorf("the registration answer should not reach the generator, got %d calls", len(gen.Calls))
	}
}

func TestTriggerWelcomeInvalidNumber(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, _ := newTestOrchestrator(gen, store.NewInMemoryStore())

	if err := o.TriggerWelcome(context.Background(), "abc", ""); err == nil {
		t.Error("expected error for a number without digits")
	}
}

func TestTriggerInquiry(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	if err := o.TriggerInquiry(context.Background(), "5218122223333", "casa en escobedo"); err != nil {
		t.Fatalf("TriggerInquiry failed: %v", err)
	}

	sent := msgr.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Body, "VILLAS DE ANAHUAC") {
		t.Errorf("inquiry should run the normal query pipeline, got %q", sent[0].Body)
	}
}

func TestRunConsumesMessages(t *testing.T) {
	gen := &genai.MockGenerator{Responses: []string{domainClassification}}
	o, msgr := newTestOrchestrator(gen, store.NewInMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	msgr.messages <- models.Message{From: "5218111111111", Body: "casa en escobedo"}

	deadline := time.After(2 * time.Second)
	for {
		if len(msgr.sentMessages()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("orchestrator did not process the message in time, sends: %+v", msgr.sentMessages())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
