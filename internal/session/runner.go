package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"agentcron/internal/eventbus"
	"agentcron/internal/storage"
	logx "agentcron/pkg/logx"
)

// Config selects the chat backend.
type Config struct {
	Provider     string // only "ollama"
	Host         string // empty uses OLLAMA_HOST or the client default
	Model        string // fallback model id
	MaxFileBytes int64
	Timeout      time.Duration // HTTP client timeout; 0 = none
}

// Chatter is the subset of *api.Client the runner uses.
type Chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// Runner implements Pipeline on top of Instances, Store and an Ollama chat client.
type Runner struct {
	cfg       Config
	instances *Instances
	sessions  *Store
	chat      Chatter
	sinks     eventbus.Sinks
	log       logx.Logger
	now       func() time.Time
}

var _ Pipeline = (*Runner)(nil)

// NewOllamaClient builds the Ollama API client for cfg.
func NewOllamaClient(cfg Config) (*api.Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return api.ClientFromEnvironment()
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama host %q: %w", cfg.Host, err)
	}
	return api.NewClient(u, &http.Client{Timeout: cfg.Timeout}), nil
}

func NewRunner(cfg Config, kv storage.KV, chat Chatter, log logx.Logger, sinks ...eventbus.Sink) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Runner{
		cfg:       cfg,
		instances: NewInstances(log),
		sessions:  NewStore(kv),
		chat:      chat,
		sinks:     eventbus.Sinks(sinks),
		log:       log,
		now:       time.Now,
	}
}

// Sessions exposes the session store.
func (r *Runner) Sessions() *Store { return r.sessions }

func (r *Runner) Bootstrap(_ context.Context, dir string) (*Instance, error) {
	return r.instances.Get(dir)
}

func (r *Runner) CreateSession(ctx context.Context, inst *Instance, title string) (Session, error) {
	now := r.now().UnixMilli()
	ses := Session{
		ID:        NewID(),
		Title:     title,
		Directory: inst.Directory,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	if err := r.sessions.Put(ctx, ses); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	r.sinks.Emit(eventbus.Event{Type: EventCreated, Data: CreatedProps{Info: ses}})
	return ses, nil
}

func (r *Runner) ResolveParts(_ context.Context, inst *Instance, prompt string) ([]Part, error) {
	return ResolveParts(inst.Directory, prompt, r.cfg.MaxFileBytes)
}

// Prompt appends the user message, sends the whole conversation and appends the reply.
func (r *Runner) Prompt(ctx context.Context, in PromptInput) (Message, error) {
	if len(in.Parts) == 0 {
		return Message{}, ErrEmptyPrompt
	}
	modelID, err := r.modelFor(in.Model)
	if err != nil {
		return Message{}, err
	}
	user := Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Parts:     in.Parts,
		Model:     in.Model,
		CreatedAt: r.now().UnixMilli(),
	}
	ses, err := r.sessions.Append(ctx, in.SessionID, user.CreatedAt, user)
	if err != nil {
		return Message{}, err
	}
	r.emitMessage(ses.ID, user)

	var instructions string
	if in.Instance != nil {
		instructions = in.Instance.Instructions
	}
	stream := false
	req := &api.ChatRequest{
		Model:    modelID,
		Messages: toChat(instructions, ses.Messages),
		Stream:   &stream,
	}

	start := r.now()
	var reply strings.Builder
	err = r.chat.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("ollama chat: %w", err)
	}
	if strings.TrimSpace(reply.String()) == "" {
		return Message{}, ErrEmptyReply
	}

	out := Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Parts:     []Part{{Type: PartText, Text: reply.String()}},
		Model:     &Model{ProviderID: ProviderOllama, ModelID: modelID},
		CreatedAt: r.now().UnixMilli(),
	}
	if _, err := r.sessions.Append(ctx, in.SessionID, out.CreatedAt, out); err != nil {
		return Message{}, err
	}
	r.emitMessage(in.SessionID, out)
	r.log.Debug("prompt completed", logx.Session(in.SessionID), logx.String("model", modelID),
		logx.Duration("took", r.now().Sub(start)))
	return out, nil
}

func (r *Runner) modelFor(m *Model) (string, error) {
	if m == nil {
		if r.cfg.Model == "" {
			return "", fmt.Errorf("%w: no model configured", ErrProvider)
		}
		return r.cfg.Model, nil
	}
	if p := strings.TrimSpace(m.ProviderID); p != "" && p != ProviderOllama {
		return "", fmt.Errorf("%w: %s", ErrProvider, p)
	}
	if id := strings.TrimSpace(m.ModelID); id != "" {
		return id, nil
	}
	return r.cfg.Model, nil
}

func (r *Runner) emitMessage(sessionID string, m Message) {
	r.sinks.Emit(eventbus.Event{Type: EventMessageUpdated, Data: MessageProps{SessionID: sessionID, Info: m}})
}

// toChat flattens session messages into Ollama chat messages. File parts are
// inlined after the text they were referenced from.
func toChat(instructions string, msgs []Message) []api.Message {
	out := make([]api.Message, 0, len(msgs)+1)
	if strings.TrimSpace(instructions) != "" {
		out = append(out, api.Message{Role: "system", Content: instructions})
	}
	for _, m := range msgs {
		var b strings.Builder
		for i, p := range m.Parts {
			if i > 0 {
				b.WriteString("\n\n")
			}
			switch p.Type {
			case PartFile:
				fmt.Fprintf(&b, "<file path=%q>\n%s\n</file>", p.Path, p.Text)
			default:
				b.WriteString(p.Text)
			}
		}
		out = append(out, api.Message{Role: m.Role, Content: b.String()})
	}
	return out
}
