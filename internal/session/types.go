package session

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrNoDirectory = errors.New("working directory does not exist")
	ErrProvider    = errors.New("unsupported model provider")
	ErrEmptyPrompt = errors.New("prompt has no parts")
	ErrEmptyReply  = errors.New("backend returned an empty reply")
)

// ProviderOllama is the only provider id the Runner accepts.
const ProviderOllama = "ollama"

// Model selects the backend model for one prompt.
type Model struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// Instance is the per-directory execution context.
type Instance struct {
	Directory string `json:"directory"`
	// Root is set for a filesystem root; no instructions are loaded there.
	Root         bool   `json:"root"`
	Instructions string `json:"instructions,omitempty"`
}

const (
	PartText = "text"
	PartFile = "file"
)

type Part struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Path      string `json:"path,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	Model     *Model `json:"model,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Directory string    `json:"directory"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

type PromptInput struct {
	SessionID string
	Instance  *Instance
	Parts     []Part
	Model     *Model
}

// Pipeline is what a scheduled run needs from the session machinery.
type Pipeline interface {
	Bootstrap(ctx context.Context, dir string) (*Instance, error)
	CreateSession(ctx context.Context, inst *Instance, title string) (Session, error)
	ResolveParts(ctx context.Context, inst *Instance, prompt string) ([]Part, error)
	Prompt(ctx context.Context, in PromptInput) (Message, error)
}

const (
	EventCreated        = "session.created"
	EventMessageUpdated = "message.updated"
)

type CreatedProps struct {
	Info Session `json:"info"`
}

type MessageProps struct {
	SessionID string  `json:"sessionID"`
	Info      Message `json:"info"`
}
