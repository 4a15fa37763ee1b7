package tree

import (
	"fmt"
	"iter"
	"sync"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/objectstore"
)

// actionBinding pairs an Action descriptor with the application-supplied
// handler that implements it; objectstore keys bindings by action name.
type actionBinding struct {
	action  *Action
	handler ActionHandler
}

func (b *actionBinding) Name() string { return b.action.Name() }

// namedCell lets *valueCell satisfy objectstore.Object.
type namedCell struct{ *valueCell }

func (c namedCell) Name() string { return c.model.name }

// NamedValue pairs a state variable name with its string-rendered value,
// in the declaration order UPnP requires for property-set XML (spec.md
// §4.F: "listing them in declaration order").
type NamedValue struct {
	Name  string
	Value string
}

// ChangeListener is invoked once per action invocation that changed at
// least one evented state variable, with the new value of every evented
// variable that changed (already string-rendered for GENA delivery), in
// declaration order.
type ChangeListener func(svc *Service, changed []NamedValue)

// Service is one UPnP service instance: its URLs, its action table, and its
// state variable table. Action invocation is serialised per service so the
// property-set a ChangeListener observes is never a torn mix of two
// concurrent writers (spec's per-service event ordering guarantee).
type Service struct {
	id          ServiceID
	serviceType ResourceType

	controlURL  string
	eventSubURL string
	scpdURL     string

	actions objectstore.ObjectSet[*actionBinding]
	vars    objectstore.ObjectSet[namedCell]
	// varOrder preserves declaration order for GENA property-sets:
	// objectstore.ObjectSet is a plain map and does not.
	varOrder []string

	emitMu   sync.Mutex
	listener ChangeListener
}

func NewService(id ServiceID, serviceType ResourceType) *Service {
	return &Service{id: id, serviceType: serviceType}
}

func (s *Service) Name() string            { return s.id.String() }
func (s *Service) ID() ServiceID           { return s.id }
func (s *Service) Type() ResourceType      { return s.serviceType }
func (s *Service) ControlURL() string      { return s.controlURL }
func (s *Service) EventSubURL() string     { return s.eventSubURL }
func (s *Service) SCPDURL() string         { return s.scpdURL }
func (s *Service) SetControlURL(u string)  { s.controlURL = u }
func (s *Service) SetEventSubURL(u string) { s.eventSubURL = u }
func (s *Service) SetSCPDURL(u string)     { s.scpdURL = u }
func (s *Service) SetChangeListener(l ChangeListener) { s.listener = l }

// IsEvented reports whether any of this service's state variables emit
// events — used by the HTTP layer to decide whether SUBSCRIBE is allowed.
func (s *Service) IsEvented() bool {
	for c := range s.vars.All() {
		if c.model.IsEvented() {
			return true
		}
	}
	return false
}

func (s *Service) AddStateVariable(v *StateVariable) {
	if _, exists := s.vars.Get(v.name); !exists {
		s.varOrder = append(s.varOrder, v.name)
	}
	s.vars.Insert(namedCell{newValueCell(v)})
}

func (s *Service) StateVariable(name string) (*StateVariable, bool) {
	c, ok := s.vars.Get(name)
	if !ok {
		return nil, false
	}
	return c.model, true
}

// StateVariables yields state variables in declaration order.
func (s *Service) StateVariables() iter.Seq[*StateVariable] {
	return func(yield func(*StateVariable) bool) {
		for _, name := range s.varOrder {
			c, ok := s.vars.Get(name)
			if !ok {
				continue
			}
			if !yield(c.model) {
				return
			}
		}
	}
}

// Value returns the current value of a state variable.
func (s *Service) Value(name string) (interface{}, bool) {
	c, ok := s.vars.Get(name)
	if !ok {
		return nil, false
	}
	return c.get(), true
}

// WithVariable is the scoped acquisition primitive exposed to action
// handlers: it locks the named variable's cell, lets fn compute the next
// value from the current one, validates and stores it, and always unlocks —
// even if fn returns an error or panics.
func (s *Service) WithVariable(name string, fn func(current interface{}) (interface{}, error)) (bool, error) {
	c, ok := s.vars.Get(name)
	if !ok {
		return false, errs.New(errs.NotFound, "no such state variable %q", name)
	}
	return c.withLock(fn)
}

func (s *Service) AddAction(a *Action, handler ActionHandler) {
	s.actions.Insert(&actionBinding{action: a, handler: handler})
}

func (s *Service) Action(name string) (*Action, bool) {
	b, ok := s.actions.Get(name)
	if !ok {
		return nil, false
	}
	return b.action, true
}

func (s *Service) Actions() iter.Seq[*Action] {
	return func(yield func(*Action) bool) {
		for b := range s.actions.All() {
			if !yield(b.action) {
				return
			}
		}
	}
}

// EventedSnapshot renders the current value of every evented state
// variable in declaration order, for use both by the initial NOTIFY
// (subscription time) and by ChangeListener diffs.
func (s *Service) EventedSnapshot() []NamedValue {
	var out []NamedValue
	for _, name := range s.varOrder {
		c, ok := s.vars.Get(name)
		if !ok || !c.model.IsEvented() {
			continue
		}
		out = append(out, NamedValue{Name: name, Value: renderValue(c.model.varType, c.get())})
	}
	return out
}

// InvokeAction dispatches one SOAP action call: it resolves the handler,
// snapshots evented variables, calls the handler, and — if the handler
// changed any evented variable — hands the diff to the ChangeListener
// before returning. The whole sequence holds the service's emit lock so
// concurrent invocations never interleave the property-sets they produce.
func (s *Service) InvokeAction(name string, in map[string]interface{}) (map[string]interface{}, error) {
	binding, ok := s.actions.Get(name)
	if !ok {
		return nil, errs.New(errs.NotFound, "no such action %q on service %s", name, s.id)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	before := s.EventedSnapshot()
	out, err := binding.handler(s, in)
	if err != nil {
		return nil, err
	}

	if s.listener != nil {
		after := s.EventedSnapshot()
		changed := diffSnapshots(before, after)
		if len(changed) > 0 {
			s.listener(s, changed)
		}
	}
	return out, nil
}

// diffSnapshots returns entries from after whose value differs from
// before, preserving after's declaration order.
func diffSnapshots(before, after []NamedValue) []NamedValue {
	prior := make(map[string]string, len(before))
	for _, nv := range before {
		prior[nv.Name] = nv.Value
	}
	var changed []NamedValue
	for _, nv := range after {
		if prior[nv.Name] != nv.Value {
			changed = append(changed, nv)
		}
	}
	return changed
}

// RenderValue renders an already-cast state variable value to the string
// form used on the wire (SOAP responses, GENA property-sets).
func RenderValue(t StateVarType, v interface{}) string { return renderValue(t, v) }

func renderValue(t StateVarType, v interface{}) string {
	if v == nil {
		return ""
	}
	if t == TypeBoolean {
		if b, ok := v.(bool); ok {
			if b {
				return "1"
			}
			return "0"
		}
	}
	return fmt.Sprintf("%v", v)
}
