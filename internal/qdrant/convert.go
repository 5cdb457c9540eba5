package qdrant

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

func convertToQdrantPoint(p vectorstore.Point) (*qdrant.PointStruct, error) {
	payload, err := convertToQdrantPayload(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", p.ID, err)
	}
	return &qdrant.PointStruct{
		Id:      parsePointID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}, nil
}

func convertToQdrantPayload(p vectorstore.Payload) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		qv, err := convertToQdrantValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		out[k] = qv
	}
	return out, nil
}

func convertToQdrantValue(v any) (*qdrant.Value, error) {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}, nil
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int32:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}, nil
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}, nil
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}, nil
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			qv, err := convertToQdrantValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = qv
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case map[string]any:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			qv, err := convertToQdrantValue(item)
			if err != nil {
				return nil, err
			}
			fields[k] = qv
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	case vectorstore.Payload:
		return convertToQdrantValue(map[string]any(val))
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

func convertFromQdrantRetrievedPoint(p *qdrant.RetrievedPoint) vectorstore.Point {
	return vectorstore.Point{
		ID:      extractPointID(p.GetId()),
		Vector:  extractVectorOutput(p.GetVectors()),
		Payload: extractPayload(p.GetPayload()),
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) vectorstore.ScoredPoint {
	return vectorstore.ScoredPoint{
		Point: vectorstore.Point{
			ID:      extractPointID(p.GetId()),
			Vector:  extractVectorOutput(p.GetVectors()),
			Payload: extractPayload(p.GetPayload()),
		},
		Score: p.GetScore(),
	}
}

// parsePointID maps a string id back to a Qdrant id. UUIDs stay UUIDs,
// decimal strings become numeric ids.
func parsePointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewIDUUID(id)
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	default:
		return ""
	}
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	return vectors.GetVector().GetDense().GetData()
}

func extractPayload(payload map[string]*qdrant.Value) vectorstore.Payload {
	out := make(vectorstore.Payload, len(payload))
	for k, v := range payload {
		out[k] = extractValue(v)
	}
	return out
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = extractValue(item)
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = extractValue(item)
		}
		return out
	default:
		return nil
	}
}

func convertToQdrantFilter(f vectorstore.Filter) (*qdrant.Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(f.Must) == 0 {
		return nil, nil
	}
	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		match, err := convertToQdrantMatch(c.Match)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", c.Key, err)
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   c.Key,
					Match: match,
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}, nil
}

func convertToQdrantMatch(m vectorstore.Match) (*qdrant.Match, error) {
	if m.Any != nil {
		return &qdrant.Match{
			MatchValue: &qdrant.Match_Keywords{
				Keywords: &qdrant.RepeatedStrings{Strings: m.Any},
			},
		}, nil
	}
	switch v := m.Value.(type) {
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}, nil
	case int:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}, nil
	case int64:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}, nil
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported match value %T", vectorstore.ErrInvalidFilter, m.Value)
	}
}
