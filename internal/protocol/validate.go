package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://brainlink.ai/schemas/"

var (
	schemasOnce      sync.Once
	schemasErr       error
	perceptionSchema *jsonschema.Schema
	intentSchema     *jsonschema.Schema
)

func loadSchemas() error {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for _, name := range []string{"perception.schema.json", "intent.schema.json"} {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		if perceptionSchema, schemasErr = c.Compile(schemaBaseURL + "perception.schema.json"); schemasErr != nil {
			return
		}
		intentSchema, schemasErr = c.Compile(schemaBaseURL + "intent.schema.json")
	})
	return schemasErr
}

// Issue is one violated field.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a rejected payload.
type ValidationError struct {
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Field == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, is.Field+": "+is.Message)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// ValidatePerception checks a raw frame against the PerceptionEvent shape.
func ValidatePerception(raw []byte) (PerceptionEvent, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return PerceptionEvent{}, &ValidationError{Message: "invalid PerceptionEvent", Issues: []Issue{{Message: err.Error()}}}
	}
	if err := loadSchemas(); err != nil {
		return PerceptionEvent{}, fmt.Errorf("load schemas: %w", err)
	}
	if issues := schemaIssues(perceptionSchema, doc); len(issues) > 0 {
		return PerceptionEvent{}, &ValidationError{Message: "invalid PerceptionEvent", Issues: issues}
	}
	var evt PerceptionEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return PerceptionEvent{}, &ValidationError{Message: "invalid PerceptionEvent", Issues: []Issue{{Message: err.Error()}}}
	}
	return evt, nil
}

// ValidateIntent checks a raw frame against the IntentProposal shape and the
// move-params rule.
func ValidateIntent(raw []byte) (IntentProposal, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return IntentProposal{}, &ValidationError{Message: "invalid IntentProposal", Issues: []Issue{{Message: err.Error()}}}
	}
	if err := loadSchemas(); err != nil {
		return IntentProposal{}, fmt.Errorf("load schemas: %w", err)
	}
	issues := schemaIssues(intentSchema, doc)
	issues = append(issues, moveIssues(doc)...)
	if len(issues) > 0 {
		return IntentProposal{}, &ValidationError{Message: "invalid IntentProposal", Issues: issues}
	}
	var p IntentProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return IntentProposal{}, &ValidationError{Message: "invalid IntentProposal", Issues: []Issue{{Message: err.Error()}}}
	}
	return p, nil
}

// EncodeIntent serializes a proposal and refuses to return bytes that would
// not pass ValidateIntent on the other side.
func EncodeIntent(p IntentProposal) ([]byte, error) {
	if p.Type == "" {
		p.Type = TypeIntent
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateIntent(b); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("bad json: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("bad json: trailing data after object")
	}
	return doc, nil
}

func schemaIssues(s *jsonschema.Schema, doc any) []Issue {
	err := s.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Message: err.Error()}}
	}
	var out []Issue
	collectLeaves(ve, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]Issue) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Issue{Field: pointerToField(ve.InstanceLocation), Message: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

// pointerToField turns "/candidateActions/0/params" into "candidateActions[0].params".
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range strings.Split(ptr, "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

var moveKeys = []string{"destDX", "destDZ"}

func moveIssues(doc any) []Issue {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	cands, ok := root["candidateActions"].([]any)
	if !ok {
		return nil
	}
	var out []Issue
	for i, raw := range cands {
		c, ok := raw.(map[string]any)
		if !ok || c["action"] != "move" {
			continue
		}
		params, _ := c["params"].(map[string]any)
		var missing, nonNumeric []string
		for _, k := range moveKeys {
			v, present := params[k]
			if !present {
				missing = append(missing, k)
				continue
			}
			if _, ok := Number(v); !ok {
				nonNumeric = append(nonNumeric, k)
			}
		}
		if len(missing) == 0 && len(nonNumeric) == 0 {
			continue
		}
		msg := "action=move requires numeric " + strings.Join(moveKeys, ", ")
		var detail []string
		if len(missing) > 0 {
			detail = append(detail, "missing: "+strings.Join(missing, ", "))
		}
		if len(nonNumeric) > 0 {
			detail = append(detail, "non-numeric: "+strings.Join(nonNumeric, ", "))
		}
		out = append(out, Issue{
			Field:   fmt.Sprintf("candidateActions[%d].params", i),
			Message: msg + " (" + strings.Join(detail, "; ") + ")",
		})
	}
	return out
}
