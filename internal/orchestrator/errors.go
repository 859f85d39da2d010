package orchestrator

import (
	"context"
	"errors"
	"io/fs"

	"github.com/lucasnoah/autocoder/internal/fsys"
	"github.com/lucasnoah/autocoder/internal/llm"
	"github.com/lucasnoah/autocoder/internal/modify"
	"github.com/lucasnoah/autocoder/internal/pipeline"
)

// environmentError marks failures caused by the machine rather than by the
// generated change: missing credentials, a missing test runner, an
// unwritable file.
type environmentError struct {
	msg string
	err error
}

func (e *environmentError) Error() string { return e.msg }

func (e *environmentError) Unwrap() error { return e.err }

// categorize maps a node error to its failure category.
func categorize(ctx context.Context, err error) pipeline.Category {
	var (
		env *environmentError
		se  *llm.ServiceError
		pe  *modify.ParseError
	)
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return pipeline.CategoryCancelled
	case errors.As(err, &env), errors.Is(err, llm.ErrNoAPIKey),
		errors.Is(err, fs.ErrPermission), errors.Is(err, fsys.ErrOutsideRoot):
		return pipeline.CategoryEnvironment
	case errors.As(err, &se):
		return pipeline.CategoryService
	case errors.As(err, &pe):
		return pipeline.CategoryStructural
	}
	return pipeline.CategoryInternal
}
