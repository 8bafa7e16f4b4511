package variables

import (
	"maps"

	"github.com/aretw0/convoflow/pkg/domain"
	"github.com/aretw0/convoflow/pkg/schema"
)

// Scope is the variable view of one run. Writes go to the session layer.
type Scope struct {
	bot     map[string]any
	session map[string]any
	dirty   map[string]struct{}
}

// NewScope builds a scope from stored variables, decoding JSON text values.
func NewScope(bot, session map[string]domain.Variable) *Scope {
	s := &Scope{
		bot:     make(map[string]any, len(bot)),
		session: make(map[string]any, len(session)),
		dirty:   make(map[string]struct{}),
	}
	for name, v := range bot {
		s.bot[name] = schema.Decode(v)
	}
	for name, v := range session {
		s.session[name] = schema.Decode(v)
	}
	return s
}

// FromMaps builds a scope from already decoded values.
func FromMaps(bot, session map[string]any) *Scope {
	s := &Scope{bot: maps.Clone(bot), session: maps.Clone(session), dirty: make(map[string]struct{})}
	if s.bot == nil {
		s.bot = map[string]any{}
	}
	if s.session == nil {
		s.session = map[string]any{}
	}
	return s
}

// Get returns the value of a top-level variable.
func (s *Scope) Get(name string) (any, bool) {
	if v, ok := s.session[name]; ok {
		return v, true
	}
	v, ok := s.bot[name]
	return v, ok
}

// Lookup resolves a full path such as "user.address.city".
func (s *Scope) Lookup(path string) (any, bool) {
	segs := Segments(path)
	if len(segs) == 0 {
		return nil, false
	}
	root, ok := s.Get(segs[0])
	if !ok {
		return nil, false
	}
	return Walk(root, segs[1:])
}

// Set writes a session variable. Empty names are ignored.
func (s *Scope) Set(name string, value any) {
	if name == "" {
		return
	}
	s.session[name] = value
	s.dirty[name] = struct{}{}
}

// Flat returns the merged raw values, session over bot.
func (s *Scope) Flat() map[string]any {
	out := make(map[string]any, len(s.bot)+len(s.session))
	maps.Copy(out, s.bot)
	maps.Copy(out, s.session)
	return out
}

// Dirty drains the names written since the last call, as typed variables.
func (s *Scope) Dirty() []domain.Variable {
	if len(s.dirty) == 0 {
		return nil
	}
	out := make([]domain.Variable, 0, len(s.dirty))
	for name := range s.dirty {
		v := s.session[name]
		out = append(out, domain.Variable{Name: name, Value: v, Type: schema.Infer(v)})
	}
	clear(s.dirty)
	return out
}
