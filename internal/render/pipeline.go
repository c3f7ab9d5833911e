package render

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/chatdb/chatdb/internal/query"
)

var pipelineOperators = map[query.Operator]string{
	query.OpGT:  "$gt",
	query.OpGTE: "$gte",
	query.OpLT:  "$lt",
	query.OpLTE: "$lte",
	query.OpEQ:  "$eq",
	query.OpNE:  "$ne",
}

// stageRank is the fixed position of each stage kind. The post-group match
// that filters on an aggregate sits between group and sort.
var stageRank = map[query.StageKind]int{
	query.StageMatch:   0,
	query.StageLookup:  1,
	query.StageGroup:   2,
	query.StageSort:    4,
	query.StageProject: 5,
}

// Pipeline renders specs as aggregation pipelines for a document store.
type Pipeline struct{}

func NewPipeline() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Render(spec query.Spec) (query.Rendered, error) {
	if strings.TrimSpace(spec.Source) == "" {
		return query.Rendered{}, fmt.Errorf("spec source is required")
	}
	stages := make([]query.Stage, 0, 4)

	if spec.Predicate != nil {
		match, err := matchBody(*spec.Predicate)
		if err != nil {
			return query.Rendered{}, err
		}
		stages = append(stages, query.Stage{Kind: query.StageMatch, Body: match})
	}
	if spec.Lookup != nil {
		stages = append(stages, query.Stage{Kind: query.StageLookup, Body: bson.D{
			{Key: "from", Value: spec.Lookup.From},
			{Key: "localField", Value: spec.Lookup.LocalField},
			{Key: "foreignField", Value: spec.Lookup.ForeignField},
			{Key: "as", Value: spec.Lookup.As},
		}})
	}
	switch {
	case spec.Aggregate != nil:
		group, err := groupBody(*spec.Aggregate)
		if err != nil {
			return query.Rendered{}, err
		}
		stages = append(stages, query.Stage{Kind: query.StageGroup, Body: group})
	case spec.Operation == query.OpDistinct:
		if len(spec.Target) != 1 {
			return query.Rendered{}, fmt.Errorf("distinct requires exactly one target field")
		}
		stages = append(stages, query.Stage{Kind: query.StageGroup, Body: bson.D{{Key: "_id", Value: "$" + spec.Target[0]}}})
	}
	if spec.Having != nil {
		if spec.Aggregate == nil {
			return query.Rendered{}, fmt.Errorf("having requires an aggregate")
		}
		match, err := matchBody(*spec.Having)
		if err != nil {
			return query.Rendered{}, err
		}
		stages = append(stages, query.Stage{Kind: query.StageMatch, Body: match})
	}
	if spec.Order != nil {
		direction := int32(-1)
		if spec.Order.Direction == query.Ascending {
			direction = 1
		}
		stages = append(stages, query.Stage{Kind: query.StageSort, Body: bson.D{{Key: spec.Order.Field, Value: direction}}})
	}
	switch spec.Operation {
	case query.OpFindAll, query.OpFindEquals, query.OpFindCompare, query.OpSort, query.OpJoin:
		stages = append(stages, query.Stage{Kind: query.StageProject, Body: projectBody(spec.Projection)})
	case query.OpGroupAggregate, query.OpGroupHaving, query.OpDistinct:
	default:
		return query.Rendered{}, fmt.Errorf("%w: operation %q", ErrUnsupported, spec.Operation)
	}

	if err := ValidatePipeline(stages); err != nil {
		return query.Rendered{}, err
	}
	text, err := pipelineText(spec.Source, stages)
	if err != nil {
		return query.Rendered{}, err
	}
	return query.Rendered{Kind: query.KindPipeline, Source: spec.Source, Stages: stages, Text: text}, nil
}

// ValidatePipeline checks that every stage is one of the recognized shapes
// and that stages appear in their fixed order.
func ValidatePipeline(stages []query.Stage) error {
	last := -1
	grouped := false
	for i, stage := range stages {
		rank, ok := stageRank[stage.Kind]
		if !ok {
			return fmt.Errorf("stage %d: unknown kind %q", i, stage.Kind)
		}
		if len(stage.Body) == 0 {
			return fmt.Errorf("stage %d: empty %s body", i, stage.Kind)
		}
		if stage.Kind == query.StageMatch && grouped {
			rank = 3
		}
		if rank < last {
			return fmt.Errorf("stage %d: %s out of order", i, stage.Kind)
		}
		if stage.Kind == query.StageGroup {
			grouped = true
		}
		last = rank
	}
	return nil
}

func matchBody(p query.Predicate) (bson.D, error) {
	op, ok := pipelineOperators[p.Operator]
	if !ok {
		return nil, fmt.Errorf("unsupported operator %q", p.Operator)
	}
	return bson.D{{Key: p.Column, Value: bson.D{{Key: op, Value: p.Value.Value}}}}, nil
}

func groupBody(agg query.Aggregate) (bson.D, error) {
	var accumulator bson.D
	switch agg.Func {
	case query.AggSum:
		accumulator = bson.D{{Key: "$sum", Value: "$" + agg.Field}}
	case query.AggAvg:
		accumulator = bson.D{{Key: "$avg", Value: "$" + agg.Field}}
	case query.AggCount:
		accumulator = bson.D{{Key: "$sum", Value: int32(1)}}
	default:
		return nil, fmt.Errorf("unsupported aggregate function %q", agg.Func)
	}
	return bson.D{
		{Key: "_id", Value: "$" + agg.GroupBy},
		{Key: agg.ResultName(), Value: accumulator},
	}, nil
}

func projectBody(projection []string) bson.D {
	body := make(bson.D, 0, len(projection)+1)
	for _, field := range projection {
		if field == "_id" {
			continue
		}
		body = append(body, bson.E{Key: field, Value: int32(1)})
	}
	return append(body, bson.E{Key: "_id", Value: int32(0)})
}

func pipelineText(source string, stages []query.Stage) (string, error) {
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		raw, err := bson.MarshalExtJSON(stage.Document(), false, false)
		if err != nil {
			return "", fmt.Errorf("encode %s stage: %w", stage.Kind, err)
		}
		parts = append(parts, string(raw))
	}
	return fmt.Sprintf("db.%s.aggregate([%s])", source, strings.Join(parts, ", ")), nil
}
