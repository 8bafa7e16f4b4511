// Package compiler turns flow documents (JSON or YAML) into typed
// domain.FlowVersion values. Node configurations are decoded into their
// per-type records here, so the rest of the engine never handles untyped
// maps.
package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/convoflow/pkg/domain"
)

// ErrEmptyDocument is returned when the input holds no flow.
var ErrEmptyDocument = errors.New("empty flow document")

// ParseError reports a node whose configuration could not be decoded.
type ParseError struct {
	NodeID string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type rawNode struct {
	ID          string          `json:"nodeId"`
	Type        domain.NodeType `json:"nodeType"`
	Position    domain.Position `json:"position"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Config      map[string]any  `json:"config"`
}

type rawFlow struct {
	ID            string           `json:"id"`
	FlowID        string           `json:"flowId"`
	VersionNumber int              `json:"versionNumber"`
	Name          string           `json:"name"`
	IsDraft       bool             `json:"isDraft"`
	IsProduction  bool             `json:"isProduction"`
	Nodes         []rawNode        `json:"nodes"`
	Edges         []map[string]any `json:"edges"`
	FlowData      *struct {
		Nodes []rawNode        `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	} `json:"flowData"`
}

// Parser converts raw flow documents into flow versions.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a JSON or YAML document. Node and edge lists may sit at the
// top level or under "flowData".
func (p *Parser) Parse(data []byte) (*domain.FlowVersion, error) {
	var doc map[string]any
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flow: %w", err)
	}
	if len(doc) == 0 {
		return nil, ErrEmptyDocument
	}

	var raw rawFlow
	if err := decode(doc, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	if raw.FlowData != nil {
		raw.Nodes = append(raw.Nodes, raw.FlowData.Nodes...)
		raw.Edges = append(raw.Edges, raw.FlowData.Edges...)
	}

	fv := &domain.FlowVersion{
		ID:            raw.ID,
		FlowID:        raw.FlowID,
		VersionNumber: raw.VersionNumber,
		Name:          raw.Name,
		IsDraft:       raw.IsDraft,
		IsProduction:  raw.IsProduction,
	}
	if fv.ID == "" {
		fv.ID = fmt.Sprintf("%s@%d", fv.FlowID, fv.VersionNumber)
	}

	for _, rn := range raw.Nodes {
		if rn.ID == "" {
			return nil, fmt.Errorf("node missing nodeId")
		}
		cfg, err := DecodeConfig(rn.Type, rn.Config)
		if err != nil {
			return nil, &ParseError{NodeID: rn.ID, Err: err}
		}
		fv.Nodes = append(fv.Nodes, &domain.Node{
			ID:          rn.ID,
			Type:        rn.Type,
			Position:    rn.Position,
			Label:       rn.Label,
			Description: rn.Description,
			Config:      cfg,
		})
	}

	for i, re := range raw.Edges {
		if _, ok := re["id"]; !ok {
			if id, ok := re["edgeId"]; ok {
				re["id"] = id
			}
		}
		var e domain.Edge
		if err := decode(re, &e); err != nil {
			return nil, fmt.Errorf("failed to decode edge %d: %w", i, err)
		}
		fv.Edges = append(fv.Edges, e)
	}
	return fv, nil
}

// unmarshal reads JSON documents with encoding/json and everything else as YAML.
func unmarshal(data []byte, doc *map[string]any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return json.Unmarshal(trimmed, doc)
	}
	return yaml.Unmarshal(data, doc)
}

// DecodeConfig decodes an untyped configuration map into the record for t.
func DecodeConfig(t domain.NodeType, raw map[string]any) (domain.NodeConfig, error) {
	cfg := domain.NewConfig(t)
	if cfg == nil {
		return nil, fmt.Errorf("unknown node type %q", t)
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := decode(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			validationFromString,
			structuredToString,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

var validationType = reflect.TypeOf(domain.InputValidation{})

// validationFromString accepts the editor shorthand where INPUT validation
// is a bare regular expression.
func validationFromString(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to != validationType && to != reflect.PointerTo(validationType) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return map[string]any{}, nil
	}
	return map[string]any{"regexPattern": s}, nil
}

// structuredToString lets string fields such as an API body be written as
// an object in the document; it is stored as JSON text.
func structuredToString(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Map, reflect.Slice:
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return data, nil
}
