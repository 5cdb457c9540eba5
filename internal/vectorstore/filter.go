package vectorstore

import (
	"fmt"
	"strconv"
)

// Match is the right-hand side of a condition. Exactly one of Value or Any is set.
type Match struct {
	// Value matches a single string, integer or bool.
	Value any
	// Any matches when the payload value equals one of the keywords.
	Any []string
}

// Condition constrains one payload key.
type Condition struct {
	Key   string
	Match Match
}

// Filter is a conjunction of conditions: {must: [{key, match}]}.
type Filter struct {
	Must []Condition
}

// Eq returns a single-value condition.
func Eq(key string, value any) Condition {
	return Condition{Key: key, Match: Match{Value: value}}
}

// AnyOf returns an any-of condition.
func AnyOf(key string, values ...string) Condition {
	return Condition{Key: key, Match: Match{Any: values}}
}

// TenantFilter scopes a filter to one tenant.
func TenantFilter(tenantID string) Filter {
	return Filter{Must: []Condition{Eq(KeyTenantID, tenantID)}}
}

// EntityFilter scopes a filter to one entity of one tenant.
func EntityFilter(tenantID string, nodeType NodeType, entityID string) Filter {
	return TenantFilter(tenantID).And(Eq(nodeType.EntityKey(), entityID))
}

// And returns a new filter with conds appended.
func (f Filter) And(conds ...Condition) Filter {
	must := make([]Condition, 0, len(f.Must)+len(conds))
	must = append(must, f.Must...)
	must = append(must, conds...)
	return Filter{Must: must}
}

// TenantID returns the tenant a filter is scoped to. ok is false unless the
// filter carries a single-valued, non-empty tenantId condition.
func (f Filter) TenantID() (tenantID string, ok bool) {
	for _, c := range f.Must {
		if c.Key != KeyTenantID || c.Match.Any != nil {
			continue
		}
		if s, isStr := c.Match.Value.(string); isStr && s != "" {
			return s, true
		}
	}
	return "", false
}

// Validate reports malformed conditions.
func (f Filter) Validate() error {
	for i, c := range f.Must {
		if c.Key == "" {
			return fmt.Errorf("%w: condition %d has empty key", ErrInvalidFilter, i)
		}
		hasValue := c.Match.Value != nil
		hasAny := c.Match.Any != nil
		if hasValue == hasAny {
			return fmt.Errorf("%w: condition %q must set exactly one of value or any", ErrInvalidFilter, c.Key)
		}
		if hasAny && len(c.Match.Any) == 0 {
			return fmt.Errorf("%w: condition %q has empty any-of list", ErrInvalidFilter, c.Key)
		}
		if hasValue {
			switch c.Match.Value.(type) {
			case string, int, int64, bool:
			default:
				return fmt.Errorf("%w: condition %q has unsupported value type %T", ErrInvalidFilter, c.Key, c.Match.Value)
			}
		}
	}
	return nil
}

// Matches reports whether a payload satisfies every condition.
func (f Filter) Matches(p Payload) bool {
	for _, c := range f.Must {
		if !c.Matches(p) {
			return false
		}
	}
	return true
}

// Matches reports whether a payload satisfies the condition.
func (c Condition) Matches(p Payload) bool {
	v, ok := p[c.Key]
	if !ok {
		return false
	}
	got := scalarString(v)
	if c.Match.Any != nil {
		for _, want := range c.Match.Any {
			if got == want {
				return true
			}
		}
		return false
	}
	return got == scalarString(c.Match.Value)
}

// scalarString normalizes payload scalars so that 3, int64(3) and 3.0 compare equal.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
