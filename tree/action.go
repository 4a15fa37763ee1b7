package tree

import "fmt"

// ArgumentDirection is the UPnP in/out direction of an action argument.
type ArgumentDirection int

const (
	DirIn ArgumentDirection = iota
	DirOut
)

// Argument is one formal parameter of an Action, typed via a reference to a
// state variable declared in the same service.
type Argument struct {
	Name                 string
	Direction            ArgumentDirection
	RelatedStateVariable string
	IsReturnValue        bool
}

// Action is the descriptor of one invocable SOAP action: an ordered list of
// input arguments and an ordered list of output arguments. UPnP mandates
// that responses carry output arguments in declaration order, so both lists
// are plain slices, never maps.
type Action struct {
	name string
	in   []Argument
	out  []Argument
}

func NewAction(name string) *Action {
	return &Action{name: name}
}

func (a *Action) Name() string { return a.name }

func (a *Action) AddInArgument(name, relatedStateVariable string) {
	a.in = append(a.in, Argument{Name: name, Direction: DirIn, RelatedStateVariable: relatedStateVariable})
}

func (a *Action) AddOutArgument(name, relatedStateVariable string, isReturn bool) {
	a.out = append(a.out, Argument{Name: name, Direction: DirOut, RelatedStateVariable: relatedStateVariable, IsReturnValue: isReturn})
}

// InArguments returns the declared input arguments in declaration order.
func (a *Action) InArguments() []Argument { return a.in }

// OutArguments returns the declared output arguments in declaration order.
func (a *Action) OutArguments() []Argument { return a.out }

// ErrorCode is a UPnP action error code, carried back to the control point
// inside a SOAP fault when a handler fails.
type ErrorCode int

const (
	Success      ErrorCode = 0
	InvalidArgs  ErrorCode = 402
	ActionFailed ErrorCode = 501
)

// ActionError is the error a handler returns to signal a UPnP fault rather
// than a successful response.
type ActionError struct {
	Code        ErrorCode
	Description string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("UPnPError %d: %s", e.Code, e.Description)
}

func NewActionError(code ErrorCode, description string) *ActionError {
	return &ActionError{Code: code, Description: description}
}

// ActionHandler is application-supplied business logic for one action. It
// receives the owning Service — so it can reach Service.WithVariable for
// state mutations the Event Notifier should see, without capturing a
// forward reference to a *Service that does not exist yet when the
// Tree Builder's Factory runs — plus already-typed input arguments (keyed
// by argument name), and returns already-typed output arguments in the
// same form.
type ActionHandler func(svc *Service, in map[string]interface{}) (out map[string]interface{}, err error)
