// Package convert maps domain messages to the assistant wire payloads.
// Payloads are google.protobuf.Struct values so no generated stubs are needed.
package convert

import (
	"fmt"

	model "github.com/and161185/bazaar/internal/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// Turn is one line of a conversation as the assistant sees it.
type Turn struct {
	SenderID string
	Text     string
}

// --- helpers ---

func turnValue(t Turn) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"sender_id": structpb.NewStringValue(t.SenderID),
		"text":      structpb.NewStringValue(t.Text),
	}})
}

func str(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

// --- history ---

// TurnsFromMessages keeps the messages that carry text, in order.
func TurnsFromMessages(ms []model.Message) []Turn {
	out := make([]Turn, 0, len(ms))
	for _, m := range ms {
		text := m.Text
		if text == "" {
			text = m.Preview()
		}
		if text == "" {
			continue
		}
		out = append(out, Turn{SenderID: m.SenderID, Text: text})
	}
	return out
}

// --- requests (client -> assistant) ---

// ToProtoGenerateRequest builds {"prompt", "history": [{"sender_id","text"}]}.
func ToProtoGenerateRequest(history []model.Message, prompt string) *structpb.Struct {
	turns := TurnsFromMessages(history)
	vals := make([]*structpb.Value, 0, len(turns))
	for _, t := range turns {
		vals = append(vals, turnValue(t))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"prompt":  structpb.NewStringValue(prompt),
		"history": structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}
}

// FromProtoGenerateRequest unpacks a request on the serving side.
func FromProtoGenerateRequest(in *structpb.Struct) (prompt string, history []Turn, err error) {
	if in == nil {
		return "", nil, fmt.Errorf("nil request")
	}
	for i, v := range in.GetFields()["history"].GetListValue().GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return "", nil, fmt.Errorf("history[%d]: not an object", i)
		}
		history = append(history, Turn{SenderID: str(s, "sender_id"), Text: str(s, "text")})
	}
	return str(in, "prompt"), history, nil
}

// --- responses (assistant -> client) ---

func strList(items []string) *structpb.Value {
	vals := make([]*structpb.Value, 0, len(items))
	for _, it := range items {
		vals = append(vals, structpb.NewStringValue(it))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func fromStrList(v *structpb.Value) []string {
	var out []string
	for _, it := range v.GetListValue().GetValues() {
		if s := it.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ToProtoSummary wraps a summary as {"summary","decisions","action_items"}.
func ToProtoSummary(s model.Summary) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"summary":      structpb.NewStringValue(s.Summary),
		"decisions":    strList(s.Decisions),
		"action_items": strList(s.ActionItems),
	}}
}

// FromProtoSummary extracts a summary; a missing summary text is an error.
func FromProtoSummary(in *structpb.Struct) (model.Summary, error) {
	s := model.Summary{Summary: str(in, "summary")}
	if s.Summary == "" {
		return model.Summary{}, fmt.Errorf("empty summary in response")
	}
	s.Decisions = fromStrList(in.GetFields()["decisions"])
	s.ActionItems = fromStrList(in.GetFields()["action_items"])
	return s, nil
}

// ToProtoText wraps a generated text as {"text": ...}.
func ToProtoText(text string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"text": structpb.NewStringValue(text),
	}}
}

// FromProtoText extracts the generated text; empty output is an error.
func FromProtoText(in *structpb.Struct) (string, error) {
	t := str(in, "text")
	if t == "" {
		return "", fmt.Errorf("empty text in response")
	}
	return t, nil
}
