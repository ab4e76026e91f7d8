package event

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidOperator      = errors.New("event: invalid filter operator")
	ErrInvalidCondition     = errors.New("event: invalid filter condition")
	ErrNilHandler           = errors.New("event: subscription handler required")
	ErrSubscriptionNotFound = errors.New("event: subscription not found")
)

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler processes dispatched events. Implementations are registered per
// subscription; one required method, nothing callback-shaped.
type Handler interface {
	// Name identifies the handler in processing history and logs
	Name() string
	// Handle processes one event
	Handle(ctx context.Context, e *SyncEvent) error
}

// CompensatingHandler is a Handler that can undo its side effects when a
// later handler in the same dispatch fails.
type CompensatingHandler interface {
	Handler
	Compensate(ctx context.Context, e *SyncEvent) error
}

// ---------------------------------------------------------------------------
// Filter expression
// ---------------------------------------------------------------------------

// Operator is the tagged variant of a filter condition. Conditions are
// evaluated by an explicit interpreter over the event's field view; there
// is no reflective condition map.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpMatches     Operator = "matches"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
)

// IsValid returns true if the operator is valid
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpMatches, OpGreaterThan, OpLessThan, OpIn:
		return true
	default:
		return false
	}
}

// Condition compares one dotted field path against a value.
type Condition struct {
	Path   string
	Op     Operator
	Value  any
	Values []any
}

// Validate checks the condition is well-formed, compiling regex patterns
// eagerly so a bad pattern fails at subscribe time, not dispatch time.
func (c Condition) Validate() error {
	if c.Path == "" {
		return ErrInvalidCondition
	}
	if !c.Op.IsValid() {
		return ErrInvalidOperator
	}
	if c.Op == OpIn && len(c.Values) == 0 {
		return ErrInvalidCondition
	}
	if c.Op == OpMatches {
		pattern, ok := c.Value.(string)
		if !ok {
			return ErrInvalidCondition
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("event: invalid regex in condition: %w", err)
		}
	}
	return nil
}

// Evaluate interprets the condition against an event. Unresolvable paths
// evaluate to false, never to an error: filters are pure and total.
func (c Condition) Evaluate(e *SyncEvent) bool {
	value, ok := e.Field(c.Path)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return looseEqual(value, c.Value)
	case OpNotEquals:
		return !looseEqual(value, c.Value)
	case OpContains:
		return contains(value, c.Value)
	case OpMatches:
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case OpGreaterThan:
		a, okA := toFloat(value)
		b, okB := toFloat(c.Value)
		return okA && okB && a > b
	case OpLessThan:
		a, okA := toFloat(value)
		b, okB := toFloat(c.Value)
		return okA && okB && a < b
	case OpIn:
		for _, candidate := range c.Values {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// FilterMode combines conditions.
type FilterMode string

const (
	FilterAnd FilterMode = "AND"
	FilterOr  FilterMode = "OR"
)

// Filter is a conjunction or disjunction of conditions. The zero value
// matches everything.
type Filter struct {
	Mode       FilterMode
	Conditions []Condition
}

// Match evaluates the filter against an event. Matching is pure and
// side-effect-free.
func (f Filter) Match(e *SyncEvent) bool {
	if len(f.Conditions) == 0 {
		return true
	}
	if f.Mode == FilterOr {
		for _, c := range f.Conditions {
			if c.Evaluate(e) {
				return true
			}
		}
		return false
	}
	for _, c := range f.Conditions {
		if !c.Evaluate(e) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	return stringify(a) == stringify(b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, stringify(needle))
	case []string:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range h {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// Backoff strategy
// ---------------------------------------------------------------------------

// BackoffKind selects how retry delays grow.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// BackoffStrategy computes retry delays for one subscription.
type BackoffStrategy struct {
	Kind      BackoffKind
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter spreads delays by up to plus or minus half the computed value
	Jitter bool
}

// DefaultBackoff is exponential with jitter, starting at one second.
func DefaultBackoff() BackoffStrategy {
	return BackoffStrategy{
		Kind:      BackoffExponential,
		BaseDelay: time.Second,
		MaxDelay:  5 * time.Minute,
		Jitter:    true,
	}
}

// Delay computes the wait before retry attempt n (1-based). The returned
// delay is capped at MaxDelay before jitter is applied, so jittered delays
// stay within 1.5x the cap.
func (s BackoffStrategy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := s.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var delay time.Duration
	switch s.Kind {
	case BackoffFixed:
		delay = base
	case BackoffLinear:
		delay = base * time.Duration(attempt)
	default:
		delay = base << uint(attempt-1)
	}

	if s.MaxDelay > 0 && delay > s.MaxDelay {
		delay = s.MaxDelay
	}
	if s.Jitter {
		half := int64(delay) / 2
		if half > 0 {
			delay = time.Duration(int64(delay) - half + rand.Int63n(2*half))
		}
	}
	return delay
}

// ---------------------------------------------------------------------------
// Subscription
// ---------------------------------------------------------------------------

// DefaultHandlerTimeout bounds one handler invocation. Exceeding it is
// treated identically to a returned error.
const DefaultHandlerTimeout = 30 * time.Second

// Subscription registers a handler for a slice of the event stream.
// Matching is exact set-membership on type, entity type, and source (empty
// slice means all), then the filter expression.
type Subscription struct {
	ID          uuid.UUID
	Name        string
	EventTypes  []Type
	EntityTypes []string
	Sources     []Source
	Filter      Filter
	Handler     Handler
	Priority    int
	Enabled     bool
	Timeout     time.Duration
	Backoff     BackoffStrategy
}

// NewSubscription creates an enabled subscription with default timeout and
// backoff.
func NewSubscription(name string, handler Handler, eventTypes ...Type) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	return &Subscription{
		ID:         uuid.New(),
		Name:       name,
		EventTypes: eventTypes,
		Handler:    handler,
		Enabled:    true,
		Timeout:    DefaultHandlerTimeout,
		Backoff:    DefaultBackoff(),
	}, nil
}

// Validate checks the subscription is well-formed.
func (s *Subscription) Validate() error {
	if s.Handler == nil {
		return ErrNilHandler
	}
	for _, t := range s.EventTypes {
		if !t.IsValid() {
			return ErrInvalidType
		}
	}
	for _, src := range s.Sources {
		if !src.IsValid() {
			return ErrInvalidSource
		}
	}
	for _, c := range s.Filter.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether an event belongs to this subscription.
func (s *Subscription) Matches(e *SyncEvent) bool {
	if !s.Enabled {
		return false
	}
	if len(s.EventTypes) > 0 && !containsType(s.EventTypes, e.Type) {
		return false
	}
	if len(s.EntityTypes) > 0 && !containsString(s.EntityTypes, e.EntityType) {
		return false
	}
	if len(s.Sources) > 0 && !containsSource(s.Sources, e.Source) {
		return false
	}
	return s.Filter.Match(e)
}

// StoredSubscription is a dynamic subscription loaded from persistence.
// Only the matching fields are stored; the handler is re-attached by name
// at load time.
type StoredSubscription struct {
	Subscription
	HandlerName string
}

// SubscriptionRepository persists dynamic subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, s *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListEnabled(ctx context.Context) ([]StoredSubscription, error)
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsSource(sources []Source, s Source) bool {
	for _, candidate := range sources {
		if candidate == s {
			return true
		}
	}
	return false
}
