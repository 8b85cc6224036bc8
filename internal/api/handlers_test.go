package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inmolabs/asesorbot/internal/conversation"
	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/messaging"
	"github.com/inmolabs/asesorbot/internal/models"
	"github.com/inmolabs/asesorbot/internal/store"
	"github.com/inmolabs/asesorbot/internal/twiliowhatsapp"
)

// newTestServer wires a Server around the Twilio mock transport and the
// in-memory store.
func newTestServer(t *testing.T) (*Server, *twiliowhatsapp.MockClient, *store.InMemoryStore) {
	t.Helper()
	client := twiliowhatsapp.NewMockClient()
	msgService := messaging.NewTwilioService(client)
	st := store.NewInMemoryStore()
	gen := &genai.MockGenerator{Responses: []string{
		`{"language":"es","is_domain_query":true}`,
	}}
	orch := conversation.NewOrchestrator(msgService, st, gen,
		conversation.WithDelayFn(func(string) time.Duration { return 0 }))
	return &Server{
		addr:       ":0",
		msgService: msgService,
		st:         st,
		orch:       orch,
	}, client, st
}

func decodeResponse(t *testing.T, body *bytes.Buffer) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", body.String(), err)
	}
	return resp
}

func TestSendMessageHandler(t *testing.T) {
	server, client, _ := newTestServer(t)

	body := `{"number":"+52 81 1111 1111","message":"hola"}`
	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.sendMessageHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(client.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(client.SentMessages))
	}
	if client.SentMessages[0].To != "528111111111" {
		t.Errorf("recipient should be canonicalized, got %q", client.SentMessages[0].To)
	}
	if resp := decodeResponse(t, rec.Body); resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %+v", resp)
	}
}

func TestSendMessageHandlerValidation(t *testing.T) {
	server, _, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing number", `{"message":"hola"}`},
		{"missing message", `{"number":"5218111111111"}`},
	}
	for _, c := range cases {
		req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(c.body))
		rec := httptest.NewRecorder()
		server.sendMessageHandler(rec, req)
		if rec.Code != 400 {
			t.Errorf("%s: expected 400, got %d", c.name, rec.Code)
		}
	}
}

func TestSendMessageHandlerMethodNotAllowed(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/v1/messages", nil)
	rec := httptest.NewRecorder()
	server.sendMessageHandler(rec, req)
	if rec.Code != 405 {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRegisterHandlerTriggersWelcome(t *testing.T) {
	server, client, _ := newTestServer(t)

	body := `{"number":"5218122223333","name":"Luis"}`
	req := httptest.NewRequest("POST", "/v1/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.registerHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(client.SentMessages) != 1 {
		t.Fatalf("expected 1 welcome send, got %d", len(client.SentMessages))
	}
	if !strings.Contains(client.SentMessages[0].Body, "Luis") {
		t.Errorf("welcome should be personalized, got %q", client.SentMessages[0].Body)
	}
	if resp := decodeResponse(t, rec.Body); resp.Status != string(models.APIStatusTriggered) {
		t.Errorf("expected triggered status, got %+v", resp)
	}
}

func TestInquiryHandlerRunsPipeline(t *testing.T) {
	server, client, _ := newTestServer(t)

	body := `{"number":"5218122223333","question":"casa en escobedo"}`
	req := httptest.NewRequest("POST", "/v1/real-estate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.inquiryHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(client.SentMessages) != 1 {
		t.Fatalf("expected 1 send, got %d", len(client.SentMessages))
	}
	if !strings.Contains(client.SentMessages[0].Body, "VILLAS DE ANAHUAC") {
		t.Errorf("inquiry should return inventory matches, got %q", client.SentMessages[0].Body)
	}
}

func TestInquiryHandlerMissingQuestion(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/real-estate", strings.NewReader(`{"number":"5218122223333"}`))
	rec := httptest.NewRecorder()
	server.inquiryHandler(rec, req)
	if rec.Code != 400 {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestBlacklistHandlerAddCheckRemove(t *testing.T) {
	server, _, st := newTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v1/blacklist", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.blacklistHandler(rec, req)
		return rec
	}

	if rec := post(`{"number":"5218100000000","intent":"add"}`); rec.Code != 200 {
		t.Fatalf("add: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	blocked, _ := st.IsBlacklisted(httptest.NewRequest("GET", "/", nil).Context(), "5218100000000")
	if !blocked {
		t.Error("number should be blacklisted after add")
	}

	rec := post(`{"number":"5218100000000","intent":"check"}`)
	if rec.Code != 200 {
		t.Fatalf("check: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"blacklisted":true`) {
		t.Errorf("check should report blacklisted, got %s", rec.Body.String())
	}

	if rec := post(`{"number":"5218100000000","intent":"remove"}`); rec.Code != 200 {
		t.Fatalf("remove: expected 200, got %d", rec.Code)
	}
	rec = post(`{"number":"5218100000000","intent":"check"}`)
	if !strings.Contains(rec.Body.String(), `"blacklisted":false`) {
		t.Errorf("check should report not blacklisted, got %s", rec.Body.String())
	}
}

func TestBlacklistHandlerInvalidIntent(t *testing.T) {
	server, _, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/blacklist", strings.NewReader(`{"number":"5218100000000","intent":"purge"}`))
	rec := httptest.NewRecorder()
	server.blacklistHandler(rec, req)
	if rec.Code != 400 {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestBlacklistHandlerList(t *testing.T) {
	server, _, st := newTestServer(t)
	ctx := httptest.NewRequest("GET", "/", nil).Context()
	if err := st.AddBlacklistedContact(ctx, "5218100000000"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/v1/blacklist", nil)
	rec := httptest.NewRecorder()
	server.blacklistHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "5218100000000") {
		t.Errorf("list should contain the seeded number, got %s", rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	server.healthHandler(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("expected healthy status, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"active_listings":7`) {
		t.Errorf("expected listing count in health payload, got %s", rec.Body.String())
	}
}
