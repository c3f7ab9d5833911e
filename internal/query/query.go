package query

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Kind string

const (
	KindSQL      Kind = "sql"
	KindPipeline Kind = "pipeline"
)

type StageKind string

const (
	StageMatch   StageKind = "match"
	StageGroup   StageKind = "group"
	StageSort    StageKind = "sort"
	StageLookup  StageKind = "lookup"
	StageProject StageKind = "project"
)

type Stage struct {
	Kind StageKind `json:"kind"`
	Body bson.D    `json:"body"`
}

// Document returns the stage in driver form, e.g. {"$match": {...}}.
func (s Stage) Document() bson.D {
	return bson.D{{Key: "$" + string(s.Kind), Value: s.Body}}
}

// Rendered is a backend-native query. SQL is set for relational backends and
// Stages for document backends. Text is always a printable form.
type Rendered struct {
	Kind   Kind    `json:"kind"`
	Source string  `json:"source"`
	SQL    string  `json:"sql,omitempty"`
	Stages []Stage `json:"-"`
	Text   string  `json:"text"`
}

func (r Rendered) Pipeline() []bson.D {
	out := make([]bson.D, 0, len(r.Stages))
	for _, stage := range r.Stages {
		out = append(out, stage.Document())
	}
	return out
}

type Request struct {
	Query    Rendered
	RowLimit int
}

type Result struct {
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type Renderer interface {
	Render(spec Spec) (Rendered, error)
}
