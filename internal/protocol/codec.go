package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindScenarioConfig
	KindIntentions
	KindSnapshot
)

func (k MessageKind) String() string {
	switch k {
	case KindScenarioConfig:
		return "ScenarioConfig"
	case KindIntentions:
		return "IntentionSet"
	case KindSnapshot:
		return "Snapshot"
	}
	return "unknown"
}

// Encode renders v as one compact JSON line without the trailing newline.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

// EncodeIntentions renders a round's sets as one JSON array line.
func EncodeIntentions(sets []IntentionSet) ([]byte, error) {
	if sets == nil {
		sets = []IntentionSet{}
	}
	return Encode(sets)
}

// Classify identifies a line by shape alone.
func Classify(line []byte) (MessageKind, error) {
	s, err := loadSchemas()
	if err != nil {
		return KindUnknown, err
	}
	// Validate wants the raw decoded value with numbers kept as json.Number.
	var doc any
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return KindUnknown, protoErr(ErrProtoBadRequest, line, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return KindUnknown, protoErr(ErrProtoBadRequest, line, errors.New("trailing data after message"))
	}
	if arr, ok := doc.([]any); ok {
		for _, el := range arr {
			if err := s.intention.Validate(el); err != nil {
				return KindUnknown, protoErr(ErrProtoBadRequest, line, err)
			}
		}
		return KindIntentions, nil
	}
	switch {
	case s.config.Validate(doc) == nil:
		return KindScenarioConfig, nil
	case s.snapshot.Validate(doc) == nil:
		return KindSnapshot, nil
	case s.intention.Validate(doc) == nil:
		return KindIntentions, nil
	}
	return KindUnknown, protoErr(ErrProtoBadRequest, line, errors.New("unrecognized message shape"))
}

func DecodeScenarioConfig(line []byte) (ScenarioConfig, error) {
	var cfg ScenarioConfig
	if err := decodeAs(line, KindScenarioConfig, &cfg); err != nil {
		return ScenarioConfig{}, err
	}
	return cfg, nil
}

// DecodeIntentions accepts a JSON array of sets or a single set object.
func DecodeIntentions(line []byte) ([]IntentionSet, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one IntentionSet
		if err := decodeAs(line, KindIntentions, &one); err != nil {
			return nil, err
		}
		if err := one.Validate(); err != nil {
			return nil, protoErr(ErrProtoBadRequest, line, err)
		}
		return []IntentionSet{one}, nil
	}
	var sets []IntentionSet
	if err := decodeAs(line, KindIntentions, &sets); err != nil {
		return nil, err
	}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, protoErr(ErrProtoBadRequest, line, err)
		}
	}
	if _, err := Batch(sets); err != nil {
		return nil, protoErr(ErrProtoBadRequest, line, err)
	}
	return sets, nil
}

func DecodeSnapshot(line []byte) (Snapshot, error) {
	var snap Snapshot
	if err := decodeAs(line, KindSnapshot, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func decodeAs(line []byte, want MessageKind, v any) error {
	got, err := Classify(line)
	if err != nil {
		return err
	}
	if got != want {
		return protoErr(ErrProtoUnexpected, line, fmt.Errorf("expected %s, got %s", want, got))
	}
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return protoErr(ErrProtoBadRequest, line, err)
	}
	return nil
}
