package task

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("task not found")
	ErrValidation = errors.New("invalid task")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task: %s %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: field, Msg: "is required"}
	}
	return nil
}

func validateModel(m *ModelRef) error {
	if m == nil {
		return nil
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return &ValidationError{Field: "model.providerID", Msg: "is required"}
	}
	if strings.TrimSpace(m.ModelID) == "" {
		return &ValidationError{Field: "model.modelID", Msg: "is required"}
	}
	return nil
}

// Validate checks the fields Create requires.
func (in CreateInput) Validate() error {
	for _, f := range []struct{ name, v string }{
		{"name", in.Name},
		{"cron", in.Cron},
		{"cwd", in.Cwd},
		{"prompt", in.Prompt},
	} {
		if err := required(f.name, f.v); err != nil {
			return err
		}
	}
	return validateModel(in.Model)
}

// Validate rejects present-but-blank fields.
func (p Patch) Validate() error {
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"name", p.Name},
		{"cron", p.Cron},
		{"cwd", p.Cwd},
		{"prompt", p.Prompt},
	} {
		if f.v == nil {
			continue
		}
		if err := required(f.name, *f.v); err != nil {
			return err
		}
	}
	return validateModel(p.Model)
}
