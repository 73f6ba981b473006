package trace

// Kind is the wire tag of an event.
type Kind string

const (
	KindLLMCall  Kind = "llm_call"
	KindToolCall Kind = "tool_call"
	KindEdit     Kind = "edit"
)

// ParseKind maps a wire tag to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindLLMCall, KindToolCall, KindEdit:
		return k, true
	}
	return "", false
}

// Input is the kind-specific payload of an event. The set of
// implementations is closed: Prompt, ToolInvocation and FilePath.
type Input interface {
	Kind() Kind
	isInput()
}

// Prompt is the input of an llm_call event.
type Prompt string

// FilePath is the input of an edit event: the workspace-relative path
// the recorded diff applies to.
type FilePath string

// ToolInvocation is the input of a tool_call event.
type ToolInvocation struct {
	Tool string
	Args ToolArgs
}

func (Prompt) Kind() Kind         { return KindLLMCall }
func (ToolInvocation) Kind() Kind { return KindToolCall }
func (FilePath) Kind() Kind       { return KindEdit }

func (Prompt) isInput()         {}
func (ToolInvocation) isInput() {}
func (FilePath) isInput()       {}

// ToolArgs holds tool arguments either as free text (a command line) or as
// named primitive parameters. Exactly one form is meaningful: Named is used
// when IsNamed is true.
type ToolArgs struct {
	Text    string
	Named   Metadata
	IsNamed bool
}

// TextArgs returns free-text tool arguments.
func TextArgs(s string) ToolArgs { return ToolArgs{Text: s} }

// NamedArgs returns named tool arguments.
func NamedArgs(m Metadata) ToolArgs { return ToolArgs{Named: m, IsNamed: true} }

func (a ToolArgs) Equal(o ToolArgs) bool {
	if a.IsNamed != o.IsNamed {
		return false
	}
	if a.IsNamed {
		return a.Named.Equal(o.Named)
	}
	return a.Text == o.Text
}

// Event is one recorded occurrence. Output is always the recorded text:
// the model response, the tool stdout, or the diff of an edit.
type Event struct {
	Timestamp string
	Input     Input
	Output    string
	Metadata  Metadata
}

// Kind returns the kind implied by the input payload, or "" for an event
// without input.
func (e Event) Kind() Kind {
	if e.Input == nil {
		return ""
	}
	return e.Input.Kind()
}

// Equal compares every field of two events.
func (e Event) Equal(o Event) bool {
	if e.Timestamp != o.Timestamp || e.Output != o.Output || !e.Metadata.Equal(o.Metadata) {
		return false
	}
	return inputsEqual(e.Input, o.Input)
}

func inputsEqual(a, b Input) bool {
	switch x := a.(type) {
	case Prompt:
		y, ok := b.(Prompt)
		return ok && x == y
	case FilePath:
		y, ok := b.(FilePath)
		return ok && x == y
	case ToolInvocation:
		y, ok := b.(ToolInvocation)
		return ok && x.Tool == y.Tool && x.Args.Equal(y.Args)
	}
	return a == nil && b == nil
}

func NewLLMCall(ts, prompt, response string, md Metadata) Event {
	return Event{Timestamp: ts, Input: Prompt(prompt), Output: response, Metadata: md}
}

func NewToolCall(ts, tool string, args ToolArgs, output string, md Metadata) Event {
	return Event{Timestamp: ts, Input: ToolInvocation{Tool: tool, Args: args}, Output: output, Metadata: md}
}

func NewEdit(ts, path, diff string, md Metadata) Event {
	return Event{Timestamp: ts, Input: FilePath(path), Output: diff, Metadata: md}
}
