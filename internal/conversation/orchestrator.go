package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/inmolabs/asesorbot/internal/genai"
	"github.com/inmolabs/asesorbot/internal/listings"
	"github.com/inmolabs/asesorbot/internal/messaging"
	"github.com/inmolabs/asesorbot/internal/models"
	"github.com/inmolabs/asesorbot/internal/store"
)

// Opts holds configuration options for the orchestrator.
type Opts struct {
	HistoryPairs    int
	IdleTimeout     time.Duration
	StaticBlacklist []string
	AdminNumbers    []string
	DelayFn         func(string) time.Duration
	Now             func() time.Time
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithHistoryPairs sets the per-user history retention in interaction pairs.
func WithHistoryPairs(pairs int) Option {
	return func(o *Opts) { o.HistoryPairs = pairs }
}

// WithIdleTimeout sets how long a pending flow survives without a new message.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// WithStaticBlacklist sets the environment-sourced blacklist numbers.
func WithStaticBlacklist(numbers []string) Option {
	return func(o *Opts) { o.StaticBlacklist = numbers }
}

// WithAdminNumbers sets the numbers allowed to run admin commands in chat.
func WithAdminNumbers(numbers []string) Option {
	return func(o *Opts) { o.AdminNumbers = numbers }
}

// WithDelayFn overrides the typing-delay function. Tests use this to avoid
// real sleeps.
func WithDelayFn(fn func(string) time.Duration) Option {
	return func(o *Opts) { o.DelayFn = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Orchestrator drives the per-user conversation state machine: it consumes
// inbound messages, classifies them, routes each through a fixed branch
// priority, and sends the reply with a humanized typing delay. All state for
// a user is mutated under that user's lock, so concurrent messages from the
// same user are serialized while distinct users proceed in parallel.
type Orchestrator struct {
	history    *HistoryStore
	sessions   *SessionStore
	classifier *Classifier
	composer   *Composer
	gen        genai.Generator
	store      store.Store
	msg        messaging.Service

	staticBlacklist map[string]bool
	adminNumbers    map[string]bool
	idleTimeout     time.Duration
	delayFn         func(string) time.Duration
	now             func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewOrchestrator wires the conversation core around a messaging service, a
// store, and a generator.
func NewOrchestrator(msg messaging.Service, st store.Store, gen genai.Generator, opts ...Option) *Orchestrator {
	cfg := Opts{
		HistoryPairs: DefaultHistoryPairs,
		IdleTimeout:  DefaultIdleTimeout,
		DelayFn:      HumanDelay,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Orchestrator{
		history:         NewHistoryStore(cfg.HistoryPairs),
		sessions:        NewSessionStore(),
		classifier:      NewClassifier(gen),
		composer:        NewComposer(),
		gen:             gen,
		store:           st,
		msg:             msg,
		staticBlacklist: make(map[string]bool),
		adminNumbers:    make(map[string]bool),
		idleTimeout:     cfg.IdleTimeout,
		delayFn:         cfg.DelayFn,
		now:             cfg.Now,
		userLocks:       make(map[string]*sync.Mutex),
	}
	for _, n := range cfg.StaticBlacklist {
		o.staticBlacklist[strings.TrimSpace(n)] = true
	}
	for _, n := range cfg.AdminNumbers {
		o.adminNumbers[strings.TrimSpace(n)] = true
	}
	return o
}

// Run consumes inbound messages and delivery receipts until the context is
// canceled. Each message is handled on its own goroutine under the sender's
// lock.
func (o *Orchestrator) Run(ctx context.Context) {
	slog.Info("Orchestrator.Run: started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Orchestrator.Run: stopping", "reason", ctx.Err())
			return
		case msg, ok := <-o.msg.Messages():
			if !ok {
				slog.Info("Orchestrator.Run: message channel closed")
				return
			}
			go func(m models.Message) {
				lock := o.lockFor(m.From)
				lock.Lock()
				defer lock.Unlock()
				o.HandleMessage(ctx, m)
			}(msg)
		case receipt, ok := <-o.msg.Receipts():
			if !ok {
				continue
			}
			slog.Debug("Orchestrator.Run: receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

func (o *Orchestrator) lockFor(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}

// HandleMessage routes one inbound message through the branch priority:
// blacklist, empty message, admin command, attached image, pending
// registration, pending follow-up, inventory match, capability question,
// human escalation, then general domain query. Earlier branches win when a
// message satisfies several. Slash-prefixed messages from non-admins are
// dropped silently so command traffic never reaches the classifier.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg models.Message) {
	userID := msg.From
	body := strings.TrimSpace(msg.Body)
	now := o.now()

	if o.isBlacklisted(ctx, userID) {
		slog.Debug("Orchestrator.HandleMessage: blacklisted sender ignored", "from", userID)
		return
	}

	if body == "" && !msg.HasMedia {
		slog.Debug("Orchestrator.HandleMessage: empty message ignored", "from", userID)
		return
	}

	session := o.sessions.ResetIfStale(userID, now, o.idleTimeout)
	firstContact := session.LastMessageAt.IsZero() && len(o.history.History(userID)) == 0

	if strings.HasPrefix(body, "/") {
		if o.adminNumbers[userID] {
			o.handleAdminCommand(ctx, userID, body)
			o.touch(userID, session, now)
			return
		}
		// command traffic never enters the conversational path
		slog.Debug("Orchestrator.HandleMessage: command from non-admin dropped", "from", userID)
		return
	}

	if firstContact {
		o.sendHumanized(ctx, userID, Reply(ReplyWelcome, models.DefaultLanguage, msg.PushName))
	}

	if msg.IsImage() {
		handled := o.handleImage(ctx, msg, session.Language)
		if handled || body == "" {
			session.Pending = PendingNone
			o.touch(userID, session, now)
			return
		}
		// download failed but a caption exists: process it as text
	}

	if session.Pending == PendingRegistration {
		o.handleRegistration(ctx, userID, body, &session)
		o.touch(userID, session, now)
		return
	}

	if session.Pending == PendingFollowup {
		if done := o.handleFollowup(ctx, userID, body, displayName(msg.PushName, session.Name), &session); done {
			o.touch(userID, session, now)
			return
		}
		// not a clean yes/no: fall through and treat it as a new query
		session.Pending = PendingNone
	}

	o.processQuery(ctx, msg, body, &session)
	o.touch(userID, session, now)
}

func (o *Orchestrator) touch(userID string, session SessionState, now time.Time) {
	session.LastMessageAt = now
	o.sessions.Set(userID, session)
}

// processQuery handles the classified text branches for a message body.
func (o *Orchestrator) processQuery(ctx context.Context, msg models.Message, body string, session *SessionState) {
	userID := msg.From

	snapshot, err := o.store.ActiveListings(ctx)
	if err != nil {
		slog.Error("Orchestrator.processQuery: listing fetch failed, continuing with empty inventory", "error", err)
		snapshot = nil
	}

	cls := o.classifier.Classify(ctx, body, snapshot)
	session.Language = cls.Language

	switch {
	case len(cls.MatchedListings) > 0:
		o.history.Append(userID, models.RoleUser, body)
		reply := listings.FormatResults(cls.MatchedListings, cls.Language)
		o.history.Append(userID, models.RoleAssistant, reply)
		o.sendHumanized(ctx, userID, reply)
		session.Pending = PendingFollowup

	case cls.IsInventoryQuery:
		o.history.Append(userID, models.RoleUser, body)
		reply := listings.FormatInventory(snapshot, cls.Language)
		o.history.Append(userID, models.RoleAssistant, reply)
		o.sendHumanized(ctx, userID, reply)
		session.Pending = PendingFollowup

	case cls.IsAboutCapabilities:
		o.sendHumanized(ctx, userID, Reply(ReplyCapabilities, cls.Language, ""))
		o.sendHumanized(ctx, userID, Reply(ReplyFollowup, cls.Language, ""))
		session.Pending = PendingFollowup

	case cls.NeedsHuman:
		// the handoff text already ends with a soft follow-up question
		o.sendHumanized(ctx, userID, Reply(ReplyHandoff, cls.Language, displayName(msg.PushName, session.Name)))
		session.Pending = PendingFollowup

	default:
		o.generateReply(ctx, msg, body, snapshot, cls, session)
	}
}

// generateReply runs the composed-prompt generation path: answer, then the
// follow-up question, leaving the session awaiting the yes/no answer. On
// generator failure the user's turn stays in history but no assistant turn is
// recorded, and a localized apology goes out instead.
func (o *Orchestrator) generateReply(ctx context.Context, msg models.Message, body string, snapshot []models.Listing, cls models.Classification, session *SessionState) {
	userID := msg.From
	name := displayName(msg.PushName, session.Name)

	instructions, err := o.store.AdvisorInstructions(ctx)
	if err != nil {
		slog.Error("Orchestrator.generateReply: instruction fetch failed, continuing without", "error", err)
		instructions = nil
	}

	contextBlock := o.history.RenderContext(userID, body)
	userPrompt, systemPrompt := o.composer.Compose(contextBlock, snapshot, cls.MatchedListings, name, instructions)

	o.history.Append(userID, models.RoleUser, body)

	answer, err := o.gen.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Error("Orchestrator.generateReply: generation failed", "error", err, "from", userID)
		o.sendHumanized(ctx, userID, Reply(ReplyGenerationError, cls.Language, name))
		session.Pending = PendingNone
		return
	}

	o.history.Append(userID, models.RoleAssistant, answer)
	o.sendHumanized(ctx, userID, answer)
	o.sendHumanized(ctx, userID, Reply(ReplyFollowup, cls.Language, ""))
	session.Pending = PendingFollowup
}

// displayName prefers the transport-provided push name, falling back to the
// name captured during registration.
func displayName(pushName, sessionName string) string {
	if pushName != "" {
		return pushName
	}
	return sessionName
}

// handleImage acknowledges an attached image and reports the canned analysis
// result. It returns false when the media could not be fetched, letting the
// caller fall back to the caption text.
func (o *Orchestrator) handleImage(ctx context.Context, msg models.Message, lang string) bool {
	if lang == "" {
		lang = models.DefaultLanguage
	}
	o.sendHumanized(ctx, msg.From, Reply(ReplyAnalyzingImage, lang, msg.PushName))

	if msg.Download == nil {
		slog.Warn("Orchestrator.handleImage: image message without fetcher", "from", msg.From)
		return false
	}
	data, mimeType, err := msg.Download(ctx)
	if err != nil {
		slog.Error("Orchestrator.handleImage: media download failed", "error", err, "from", msg.From)
		return false
	}
	slog.Debug("Orchestrator.handleImage: image downloaded", "from", msg.From, "bytes", len(data), "mimeType", mimeType)

	o.sendHumanized(ctx, msg.From, Reply(ReplyImageResult, lang, ""))
	return true
}

// handleFollowup consumes a pending yes/no follow-up answer. It returns true
// when the answer was consumed; anything else is left for normal processing.
func (o *Orchestrator) handleFollowup(ctx context.Context, userID, body, name string, session *SessionState) bool {
	lang := session.Language
	if lang == "" {
		lang = models.DefaultLanguage
	}
	switch {
	case IsAffirmative(body, lang):
		o.sendHumanized(ctx, userID, Reply(ReplyContinue, lang, name))
		session.Pending = PendingNone
		return true
	case IsNegative(body, lang):
		o.sendHumanized(ctx, userID, Reply(ReplyClosing, lang, name))
		session.Pending = PendingNone
		return true
	default:
		return false
	}
}

// handleRegistration captures a pending registration field: the message body
// is taken as the customer's name, stripped of common self-introduction
// prefixes, stored on the session, and acknowledged.
func (o *Orchestrator) handleRegistration(ctx context.Context, userID, body string, session *SessionState) {
	lang := session.Language
	if lang == "" {
		lang = models.DefaultLanguage
	}

	name := strings.TrimSpace(body)
	for _, prefix := range []string{"me llamo ", "mi nombre es ", "soy ", "my name is ", "i am ", "i'm "} {
		if len(name) > len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}

	session.Name = name
	session.Pending = PendingNone
	slog.Debug("Orchestrator.handleRegistration: name captured", "from", userID)
	o.sendHumanized(ctx, userID, Reply(ReplyRegistered, lang, name))
}

// handleAdminCommand executes in-chat management commands from configured
// admin numbers. Supported: /blacklist add|remove <number>.
func (o *Orchestrator) handleAdminCommand(ctx context.Context, from, body string) {
	fields := strings.Fields(body)
	if len(fields) != 3 || fields[0] != "/blacklist" {
		o.sendHumanized(ctx, from, "Comando no reconocido. Uso: /blacklist add|remove <número>")
		return
	}
	number := fields[2]
	var err error
	var confirmation string
	switch fields[1] {
	case "add":
		err = o.store.AddBlacklistedContact(ctx, number)
		confirmation = fmt.Sprintf("Listo, %s agregado a la lista de bloqueo.", number)
	case "remove":
		err = o.store.RemoveBlacklistedContact(ctx, number)
		confirmation = fmt.Sprintf("Listo, %s eliminado de la lista de bloqueo.", number)
	default:
		o.sendHumanized(ctx, from, "Comando no reconocido. Uso: /blacklist add|remove <número>")
		return
	}
	if err != nil {
		slog.Error("Orchestrator.handleAdminCommand: blacklist update failed", "error", err, "admin", from)
		o.sendHumanized(ctx, from, "No pude actualizar la lista, intenta de nuevo.")
		return
	}
	slog.Info("Orchestrator.handleAdminCommand: blacklist updated", "admin", from, "action", fields[1], "number", number)
	o.sendHumanized(ctx, from, confirmation)
}

// isBlacklisted checks the union of the static env blacklist and the
// store-backed contact list. Store errors fail open so a database outage does
// not silence every conversation.
func (o *Orchestrator) isBlacklisted(ctx context.Context, number string) bool {
	if o.staticBlacklist[number] {
		return true
	}
	blocked, err := o.store.IsBlacklisted(ctx, number)
	if err != nil {
		slog.Warn("Orchestrator.isBlacklisted: store check failed, allowing sender", "error", err, "number", number)
		return false
	}
	return blocked
}

// sendHumanized sends a message after the typing delay for its length. The
// delay aborts on context cancellation.
func (o *Orchestrator) sendHumanized(ctx context.Context, to, body string) {
	if body == "" {
		return
	}
	delay := o.delayFn(body)
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if err := o.msg.SendMessage(ctx, to, body); err != nil {
		slog.Error("Orchestrator.sendHumanized: send failed", "error", err, "to", to)
	}
}

// TriggerWelcome sends the localized welcome message to a number, used by the
// registration endpoint to start a conversation proactively. A registration
// without a name also asks for one and leaves the session awaiting it, so the
// next inbound message is captured as the customer's name.
func (o *Orchestrator) TriggerWelcome(ctx context.Context, number, name string) error {
	canonical, err := o.msg.ValidateAndCanonicalizeRecipient(number)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	lock := o.lockFor(canonical)
	lock.Lock()
	defer lock.Unlock()

	if err := o.msg.SendMessage(ctx, canonical, Reply(ReplyWelcome, models.DefaultLanguage, name)); err != nil {
		return fmt.Errorf("failed to send welcome: %w", err)
	}

	session := o.sessions.Get(canonical)
	if strings.TrimSpace(name) == "" {
		if err := o.msg.SendMessage(ctx, canonical, Reply(ReplyAskName, models.DefaultLanguage, "")); err != nil {
			return fmt.Errorf("failed to send name question: %w", err)
		}
		session.Pending = PendingRegistration
	} else {
		session.Name = name
	}
	o.touch(canonical, session, o.now())
	return nil
}

// TriggerInquiry processes a question on behalf of a number as if it had
// arrived over the messaging channel, used by the inquiry endpoint.
func (o *Orchestrator) TriggerInquiry(ctx context.Context, number, question string) error {
	canonical, err := o.msg.ValidateAndCanonicalizeRecipient(number)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	lock := o.lockFor(canonical)
	lock.Lock()
	defer lock.Unlock()

	session := o.sessions.ResetIfStale(canonical, o.now(), o.idleTimeout)
	session.Pending = PendingNone
	msg := models.Message{From: canonical, Body: question, Time: o.now().Unix()}
	o.processQuery(ctx, msg, strings.TrimSpace(question), &session)
	o.touch(canonical, session, o.now())
	return nil
}
