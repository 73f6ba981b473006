package trace

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Version returns the schema version of s, treating an absent field as 1.
func (s *Session) Version() int {
	if s.SchemaVersion == 0 {
		return 1
	}
	return s.SchemaVersion
}

func (s *Session) validateVersion() error {
	if s.SchemaVersion < 0 || s.SchemaVersion > SchemaVersion {
		return malformed("unsupported schema_version %d", s.SchemaVersion)
	}
	return nil
}

// --- YAML ---

type yamlEvent struct {
	Type      string     `yaml:"type"`
	Timestamp string     `yaml:"timestamp"`
	Input     any        `yaml:"input"`
	Output    *yaml.Node `yaml:"output"`
	Metadata  Metadata   `yaml:"metadata"`
}

type yamlSession struct {
	SessionID      string      `yaml:"session_id"`
	Model          string      `yaml:"model"`
	CodebaseHash   string      `yaml:"codebase_hash"`
	InitialContext *yaml.Node  `yaml:"initial_context"`
	CreatedAt      string      `yaml:"created_at"`
	SchemaVersion  int         `yaml:"schema_version,omitempty"`
	PatchFormat    string      `yaml:"patch_format,omitempty"`
	Events         []yamlEvent `yaml:"events"`
}

// MarshalYAML renders the persisted trace document.
func (s *Session) MarshalYAML() (any, error) {
	doc := yamlSession{
		SessionID:      s.ID,
		Model:          s.Model,
		CodebaseHash:   s.CodebaseHash,
		InitialContext: strNode(s.InitialContext),
		CreatedAt:      s.CreatedAt,
		SchemaVersion:  s.SchemaVersion,
		PatchFormat:    s.PatchFormat,
		Events:         make([]yamlEvent, 0, len(s.events)),
	}
	for i, e := range s.events {
		in, err := inputYAML(e.Input)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		doc.Events = append(doc.Events, yamlEvent{
			Type:      string(e.Kind()),
			Timestamp: e.Timestamp,
			Input:     in,
			Output:    strNode(e.Output),
			Metadata:  e.Metadata,
		})
	}
	return doc, nil
}

func inputYAML(in Input) (any, error) {
	switch v := in.(type) {
	case Prompt:
		return strNode(string(v)), nil
	case FilePath:
		return strNode(string(v)), nil
	case ToolInvocation:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "tool"},
			strNode(v.Tool),
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "args"})
		if v.Args.IsNamed {
			an, err := v.Args.Named.MarshalYAML()
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, an.(*yaml.Node))
		} else {
			n.Content = append(n.Content, strNode(v.Args.Text))
		}
		return n, nil
	}
	return nil, malformed("event has no input")
}

// MarshalYAML is a convenience wrapper around yaml.Marshal(s).
func MarshalYAML(s *Session) ([]byte, error) {
	return yaml.Marshal(s)
}

// UnmarshalYAML parses a trace document. Structural problems, missing
// required fields and unknown event kinds are reported as ErrMalformedTrace.
func UnmarshalYAML(data []byte) (*Session, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, malformed("%v", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, malformed("empty document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, malformed("document must be a mapping")
	}
	fields := mappingFields(doc)

	s := &Session{}
	var err error
	if s.ID, err = requiredScalar(fields, "session_id"); err != nil {
		return nil, err
	}
	if s.Model, err = requiredScalar(fields, "model"); err != nil {
		return nil, err
	}
	if s.CodebaseHash, err = requiredScalar(fields, "codebase_hash"); err != nil {
		return nil, err
	}
	s.InitialContext = optionalScalar(fields, "initial_context")
	s.CreatedAt = optionalScalar(fields, "created_at")
	s.PatchFormat = optionalScalar(fields, "patch_format")
	if n, ok := fields["schema_version"]; ok && n.ShortTag() != "!!null" {
		if err := n.Decode(&s.SchemaVersion); err != nil {
			return nil, malformed("schema_version: %v", err)
		}
	}
	if err := s.validateVersion(); err != nil {
		return nil, err
	}

	evs, ok := fields["events"]
	if !ok || evs.ShortTag() == "!!null" {
		return s, nil
	}
	if evs.Kind != yaml.SequenceNode {
		return nil, malformed("events must be a sequence (line %d)", evs.Line)
	}
	for i, en := range evs.Content {
		e, err := eventFromYAML(i, en)
		if err != nil {
			return nil, err
		}
		s.events = append(s.events, e)
	}
	return s, nil
}

func mappingFields(n *yaml.Node) map[string]*yaml.Node {
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = n.Content[i+1]
	}
	return out
}

func requiredScalar(fields map[string]*yaml.Node, name string) (string, error) {
	n, ok := fields[name]
	if !ok || n.ShortTag() == "!!null" {
		return "", malformed("missing required field %q", name)
	}
	if n.Kind != yaml.ScalarNode {
		return "", malformed("field %q must be a scalar (line %d)", name, n.Line)
	}
	return n.Value, nil
}

func optionalScalar(fields map[string]*yaml.Node, name string) string {
	n, ok := fields[name]
	if !ok || n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

func eventFromYAML(i int, n *yaml.Node) (Event, error) {
	if n.Kind != yaml.MappingNode {
		return Event{}, malformed("event %d must be a mapping", i)
	}
	fields := mappingFields(n)
	typ, err := requiredScalar(fields, "type")
	if err != nil {
		return Event{}, fmt.Errorf("event %d: %w", i, err)
	}
	kind, ok := ParseKind(typ)
	if !ok {
		return Event{}, &UnknownKindError{Index: i, Kind: typ}
	}
	var e Event
	if e.Timestamp, err = requiredScalar(fields, "timestamp"); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", i, err)
	}
	if e.Output, err = requiredScalar(fields, "output"); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", i, err)
	}
	in, ok := fields["input"]
	if !ok {
		return Event{}, fmt.Errorf("event %d: %w", i, malformed("missing required field %q", "input"))
	}
	if e.Input, err = inputFromYAML(kind, in); err != nil {
		return Event{}, fmt.Errorf("event %d: %w", i, err)
	}
	if md, ok := fields["metadata"]; ok {
		if err := e.Metadata.UnmarshalYAML(md); err != nil {
			return Event{}, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return e, nil
}

func inputFromYAML(kind Kind, n *yaml.Node) (Input, error) {
	switch kind {
	case KindLLMCall, KindEdit:
		if n.Kind != yaml.ScalarNode {
			return nil, malformed("%s input must be a string (line %d)", kind, n.Line)
		}
		val := n.Value
		if n.ShortTag() == "!!null" {
			val = ""
		}
		if kind == KindEdit {
			return FilePath(val), nil
		}
		return Prompt(val), nil
	case KindToolCall:
		if n.Kind != yaml.MappingNode {
			return nil, malformed("tool_call input must be a mapping (line %d)", n.Line)
		}
		fields := mappingFields(n)
		tool, err := requiredScalar(fields, "tool")
		if err != nil {
			return nil, err
		}
		inv := ToolInvocation{Tool: tool}
		if an, ok := fields["args"]; ok {
			switch {
			case an.Kind == yaml.MappingNode:
				var md Metadata
				if err := md.UnmarshalYAML(an); err != nil {
					return nil, err
				}
				inv.Args = NamedArgs(md)
			case an.Kind == yaml.ScalarNode && an.ShortTag() != "!!null":
				inv.Args = TextArgs(an.Value)
			case an.ShortTag() == "!!null":
			default:
				return nil, malformed("tool args must be a string or mapping (line %d)", an.Line)
			}
		}
		return inv, nil
	}
	return nil, malformed("unknown event kind %q", kind)
}

// --- JSON ---

type jsonEvent struct {
	Type      *string         `json:"type"`
	Timestamp *string         `json:"timestamp"`
	Input     json.RawMessage `json:"input"`
	Output    *string         `json:"output"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type jsonSession struct {
	SessionID      *string     `json:"session_id"`
	Model          *string     `json:"model"`
	CodebaseHash   *string     `json:"codebase_hash"`
	InitialContext string      `json:"initial_context"`
	CreatedAt      string      `json:"created_at"`
	SchemaVersion  int         `json:"schema_version,omitempty"`
	PatchFormat    string      `json:"patch_format,omitempty"`
	Events         []jsonEvent `json:"events"`
}

// MarshalJSON renders the trace document as JSON with the same shape as
// the YAML form.
func MarshalJSON(s *Session) ([]byte, error) {
	doc := jsonSession{
		SessionID:      &s.ID,
		Model:          &s.Model,
		CodebaseHash:   &s.CodebaseHash,
		InitialContext: s.InitialContext,
		CreatedAt:      s.CreatedAt,
		SchemaVersion:  s.SchemaVersion,
		PatchFormat:    s.PatchFormat,
		Events:         make([]jsonEvent, 0, len(s.events)),
	}
	for i := range s.events {
		e := s.events[i]
		in, err := EncodeInputJSON(e.Input)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		md, err := e.Metadata.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		typ := string(e.Kind())
		doc.Events = append(doc.Events, jsonEvent{
			Type:      &typ,
			Timestamp: &e.Timestamp,
			Input:     in,
			Output:    &e.Output,
			Metadata:  md,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalJSON parses a JSON trace document.
func UnmarshalJSON(data []byte) (*Session, error) {
	var doc jsonSession
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, malformed("%v", err)
	}
	switch {
	case doc.SessionID == nil:
		return nil, malformed("missing required field %q", "session_id")
	case doc.Model == nil:
		return nil, malformed("missing required field %q", "model")
	case doc.CodebaseHash == nil:
		return nil, malformed("missing required field %q", "codebase_hash")
	}
	s := &Session{
		ID:             *doc.SessionID,
		Model:          *doc.Model,
		CodebaseHash:   *doc.CodebaseHash,
		InitialContext: doc.InitialContext,
		CreatedAt:      doc.CreatedAt,
		SchemaVersion:  doc.SchemaVersion,
		PatchFormat:    doc.PatchFormat,
	}
	if err := s.validateVersion(); err != nil {
		return nil, err
	}
	for i, je := range doc.Events {
		if je.Type == nil {
			return nil, fmt.Errorf("event %d: %w", i, malformed("missing required field %q", "type"))
		}
		kind, ok := ParseKind(*je.Type)
		if !ok {
			return nil, &UnknownKindError{Index: i, Kind: *je.Type}
		}
		if je.Timestamp == nil || je.Output == nil || len(je.Input) == 0 {
			return nil, fmt.Errorf("event %d: %w", i, malformed("missing required field"))
		}
		in, err := DecodeInputJSON(kind, je.Input)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		e := Event{Timestamp: *je.Timestamp, Input: in, Output: *je.Output}
		if len(je.Metadata) > 0 {
			if err := e.Metadata.UnmarshalJSON(je.Metadata); err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
		}
		s.events = append(s.events, e)
	}
	return s, nil
}

type jsonToolInput struct {
	Tool *string         `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// EncodeInputJSON encodes an event input in its wire form.
func EncodeInputJSON(in Input) ([]byte, error) {
	switch v := in.(type) {
	case Prompt:
		return json.Marshal(string(v))
	case FilePath:
		return json.Marshal(string(v))
	case ToolInvocation:
		var args []byte
		var err error
		if v.Args.IsNamed {
			args, err = v.Args.Named.MarshalJSON()
		} else {
			args, err = json.Marshal(v.Args.Text)
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(jsonToolInput{Tool: &v.Tool, Args: args})
	}
	return nil, malformed("event has no input")
}

// DecodeInputJSON decodes the wire form of an input of the given kind.
func DecodeInputJSON(kind Kind, data []byte) (Input, error) {
	switch kind {
	case KindLLMCall, KindEdit:
		var s *string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, malformed("%s input must be a string", kind)
		}
		var val string
		if s != nil {
			val = *s
		}
		if kind == KindEdit {
			return FilePath(val), nil
		}
		return Prompt(val), nil
	case KindToolCall:
		var ti jsonToolInput
		if err := json.Unmarshal(data, &ti); err != nil {
			return nil, malformed("tool_call input must be an object")
		}
		if ti.Tool == nil {
			return nil, malformed("missing required field %q", "tool")
		}
		inv := ToolInvocation{Tool: *ti.Tool}
		args := bytes.TrimSpace(ti.Args)
		switch {
		case len(args) == 0 || bytes.Equal(args, []byte("null")):
		case args[0] == '{':
			var md Metadata
			if err := md.UnmarshalJSON(args); err != nil {
				return nil, err
			}
			inv.Args = NamedArgs(md)
		default:
			var text string
			if err := json.Unmarshal(args, &text); err != nil {
				return nil, malformed("tool args must be a string or object")
			}
			inv.Args = TextArgs(text)
		}
		return inv, nil
	}
	return nil, malformed("unknown event kind %q", kind)
}
