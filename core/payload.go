package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultActor      = "Unknown User"
	DefaultRepository = "Unknown Repo"
	DefaultRef        = "Unknown Ref"
)

// Payload is the decoded webhook body. It is never mutated by the relay.
type Payload map[string]any

type ValueKind int

const (
	ValueAbsent ValueKind = iota
	ValueString
	ValueScalar
	ValueTree
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueScalar:
		return "scalar"
	case ValueTree:
		return "tree"
	case ValueList:
		return "list"
	default:
		return "absent"
	}
}

// Value is the result of a payload lookup. The zero value is absent.
type Value struct {
	kind ValueKind
	str  string
	tree Payload
	list []any
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) Present() bool {
	return v.kind != ValueAbsent
}

// String returns the textual form of string and scalar values, or def for
// anything else.
func (v Value) String(def string) string {
	switch v.kind {
	case ValueString, ValueScalar:
		return v.str
	default:
		return def
	}
}

// Text returns the value only when it was a JSON string.
func (v Value) Text() (string, bool) {
	if v.kind != ValueString {
		return "", false
	}
	return v.str, true
}

func (v Value) Tree() (Payload, bool) {
	if v.kind != ValueTree {
		return nil, false
	}
	return v.tree, true
}

func (v Value) Len() int {
	switch v.kind {
	case ValueTree:
		return len(v.tree)
	case ValueList:
		return len(v.list)
	default:
		return 0
	}
}

func valueOf(raw any) Value {
	switch typed := raw.(type) {
	case nil:
		return Value{}
	case string:
		return Value{kind: ValueString, str: typed}
	case Payload:
		return Value{kind: ValueTree, tree: typed}
	case map[string]any:
		return Value{kind: ValueTree, tree: Payload(typed)}
	case []any:
		return Value{kind: ValueList, list: typed}
	case bool:
		return Value{kind: ValueScalar, str: strconv.FormatBool(typed)}
	case json.Number:
		return Value{kind: ValueScalar, str: typed.String()}
	case float64:
		return Value{kind: ValueScalar, str: strconv.FormatFloat(typed, 'f', -1, 64)}
	case float32:
		return Value{kind: ValueScalar, str: strconv.FormatFloat(float64(typed), 'f', -1, 32)}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Value{kind: ValueScalar, str: fmt.Sprint(typed)}
	case fmt.Stringer:
		return Value{kind: ValueScalar, str: typed.String()}
	default:
		return Value{}
	}
}

// Has reports whether key is present at the top level, even with a null value.
func (p Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p[key]
	return ok
}

func (p Payload) Get(key string) Value {
	if p == nil {
		return Value{}
	}
	return valueOf(p[key])
}

// Lookup walks nested trees. Missing keys, nulls and non-tree intermediates
// all resolve to an absent value.
func (p Payload) Lookup(path ...string) Value {
	if len(path) == 0 || p == nil {
		return Value{}
	}
	current := p
	for i, key := range path {
		value := valueOf(current[key])
		if i == len(path)-1 {
			return value
		}
		next, ok := value.Tree()
		if !ok {
			return Value{}
		}
		current = next
	}
	return Value{}
}

// LookupPath is Lookup with a dotted path, e.g. "sender.login".
func (p Payload) LookupPath(path string) Value {
	path = strings.TrimSpace(path)
	if path == "" {
		return Value{}
	}
	return p.Lookup(strings.Split(path, ".")...)
}

func (p Payload) Empty() bool {
	return len(p) == 0
}

func (p Payload) Actor() string {
	return p.Lookup("sender", "login").String(DefaultActor)
}

func (p Payload) RepositoryName() string {
	return p.Lookup("repository", "name").String(DefaultRepository)
}

func (p Payload) Ref() string {
	return p.Get("ref").String(DefaultRef)
}

// Identity is the actor/repository pair used for validation and routing.
type Identity struct {
	Actor      string
	Repository string
}

func (p Payload) Identity() Identity {
	return Identity{
		Actor:      p.Actor(),
		Repository: p.RepositoryName(),
	}
}

func (i Identity) Known() bool {
	return i.Actor != DefaultActor && i.Repository != DefaultRepository
}
