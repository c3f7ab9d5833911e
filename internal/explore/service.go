package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatdb/chatdb/internal/examples"
	"github.com/chatdb/chatdb/internal/intent"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/render"
	"github.com/chatdb/chatdb/internal/schema"
	"github.com/chatdb/chatdb/internal/translate"
)

type Outcome string

const (
	OutcomeExamples     Outcome = "examples"
	OutcomeQuery        Outcome = "query"
	OutcomeUnrecognized Outcome = "unrecognized"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeUnsupported  Outcome = "unsupported"
)

const (
	DefaultRowLimit        = 200
	DefaultExampleRowLimit = 3
)

type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// Backend bundles the collaborators of one store kind.
type Backend struct {
	Name     string
	Noun     string
	Lister   SourceLister
	Profiler profile.Profiler
	Parser   *intent.Parser
	Renderer query.Renderer
	Engine   query.Engine
}

type Options struct {
	RowLimit        int
	ExampleRowLimit int
	Logger          *slog.Logger
}

// ExecutionError reports a backend failure while running a rendered query.
type ExecutionError struct {
	Query query.Rendered
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s query: %v", e.Query.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Answer struct {
	Source    string             `json:"source"`
	Utterance string             `json:"utterance"`
	Intent    intent.Intent      `json:"intent"`
	Outcome   Outcome            `json:"outcome"`
	Message   string             `json:"message,omitempty"`
	Spec      *query.Spec        `json:"spec,omitempty"`
	Query     *query.Rendered    `json:"query,omitempty"`
	Result    *query.Result      `json:"result,omitempty"`
	Examples  []examples.Example `json:"examples,omitempty"`
}

type Service struct {
	backend         Backend
	translator      translate.Translator
	generator       examples.Generator
	rowLimit        int
	exampleRowLimit int
	logger          *slog.Logger
}

func NewService(backend Backend, opts Options) (*Service, error) {
	if backend.Lister == nil {
		return nil, fmt.Errorf("source lister is required")
	}
	if backend.Profiler == nil {
		return nil, fmt.Errorf("profiler is required")
	}
	if backend.Parser == nil {
		return nil, fmt.Errorf("intent parser is required")
	}
	if backend.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if backend.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if backend.Name == "" {
		backend.Name = "unknown"
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	if opts.ExampleRowLimit <= 0 {
		opts.ExampleRowLimit = DefaultExampleRowLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		backend:         backend,
		translator:      translate.New(),
		generator:       examples.NewGenerator(backend.Renderer, backend.Noun),
		rowLimit:        opts.RowLimit,
		exampleRowLimit: opts.ExampleRowLimit,
		logger:          logger,
	}, nil
}

func (s *Service) BackendName() string {
	return s.backend.Name
}

func (s *Service) ListSources(ctx context.Context) ([]string, error) {
	return s.backend.Lister.ListSources(ctx)
}

func (s *Service) Schema(ctx context.Context, source string) (schema.Snapshot, error) {
	start := time.Now()
	snap, err := s.backend.Profiler.Profile(ctx, source)
	observability.ObserveProfile(s.backend.Name, time.Since(start))
	if err != nil {
		return schema.Snapshot{}, err
	}
	return snap, nil
}

// Examples generates the examples for source, keeps those matching keyword
// and optionally runs each one. A failing example records its error and the
// rest still run.
func (s *Service) Examples(ctx context.Context, source, keyword string, execute bool) ([]examples.Example, error) {
	snap, err := s.Schema(ctx, source)
	if err != nil {
		return nil, err
	}
	return s.examplesFor(ctx, snap, keyword, execute)
}

func (s *Service) examplesFor(ctx context.Context, snap schema.Snapshot, keyword string, execute bool) ([]examples.Example, error) {
	generated, err := s.generator.Generate(snap)
	if err != nil {
		return nil, err
	}
	observability.ObserveExamplesGenerated(len(generated))
	filtered := examples.FilterByKeyword(generated, keyword)
	if !execute {
		return filtered, nil
	}
	for i := range filtered {
		result, err := s.execute(ctx, filtered[i].Rendered, s.exampleRowLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			filtered[i].Error = err.Error()
			continue
		}
		filtered[i].Result = &result
	}
	return filtered, nil
}

// Ask profiles the source, parses the utterance and either answers with
// examples or with a translated query. Only unavailable sources and
// execution failures are returned as errors.
func (s *Service) Ask(ctx context.Context, source, utterance string, execute bool) (Answer, error) {
	parsed := s.backend.Parser.Parse(utterance)
	observability.ObserveIntent(string(parsed.Tag))
	s.logger.DebugContext(ctx, "intent_parsed",
		slog.String("source", source),
		slog.String("tag", string(parsed.Tag)),
		slog.Any("params", parsed.Params),
	)

	// Unknown utterances are answered without touching the store.
	if parsed.Tag == intent.TagUnknown {
		return s.finish(ctx, Answer{
			Source:    source,
			Utterance: utterance,
			Intent:    parsed,
			Outcome:   OutcomeUnrecognized,
			Message:   translate.ErrUnrecognizedIntent.Error(),
		}), nil
	}

	snap, err := s.Schema(ctx, source)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{Source: snap.SourceName, Utterance: utterance, Intent: parsed}
	if parsed.IsExampleRequest() {
		list, err := s.examplesFor(ctx, snap, parsed.Param(intent.ParamKeywords), execute)
		if err != nil {
			return Answer{}, err
		}
		answer.Outcome = OutcomeExamples
		answer.Examples = list
		if len(list) == 0 {
			answer.Message = "no examples match"
		}
		return s.finish(ctx, answer), nil
	}

	spec, err := s.translator.Translate(parsed, snap)
	switch {
	case errors.Is(err, translate.ErrUnrecognizedIntent):
		answer.Outcome = OutcomeUnrecognized
		answer.Message = err.Error()
		return s.finish(ctx, answer), nil
	case errors.Is(err, translate.ErrSchemaMismatch):
		answer.Outcome = OutcomeMismatch
		answer.Message = err.Error()
		return s.finish(ctx, answer), nil
	case err != nil:
		return Answer{}, err
	}
	answer.Spec = &spec

	rendered, err := s.backend.Renderer.Render(spec)
	if errors.Is(err, render.ErrUnsupported) {
		answer.Outcome = OutcomeUnsupported
		answer.Message = err.Error()
		return s.finish(ctx, answer), nil
	}
	if err != nil {
		return Answer{}, err
	}
	answer.Outcome = OutcomeQuery
	answer.Query = &rendered

	if execute {
		result, err := s.execute(ctx, rendered, s.rowLimit)
		if err != nil {
			observability.ObserveTranslation("execution_error")
			return Answer{}, &ExecutionError{Query: rendered, Err: err}
		}
		answer.Result = &result
	}
	return s.finish(ctx, answer), nil
}

func (s *Service) finish(ctx context.Context, answer Answer) Answer {
	observability.ObserveTranslation(string(answer.Outcome))
	s.logger.DebugContext(ctx, "translation_outcome",
		slog.String("source", answer.Source),
		slog.String("tag", string(answer.Intent.Tag)),
		slog.String("outcome", string(answer.Outcome)),
	)
	return answer
}

func (s *Service) execute(ctx context.Context, rendered query.Rendered, limit int) (query.Result, error) {
	start := time.Now()
	result, err := s.backend.Engine.Execute(ctx, query.Request{Query: rendered, RowLimit: limit})
	observability.ObserveQuery(s.backend.Name, time.Since(start), err)
	return result, err
}
