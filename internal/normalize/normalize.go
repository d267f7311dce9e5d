// Package normalize turns loosely-shaped analyzer output into typed lists.
//
// An analyzer result is either a typed list, accepted as is, or raw text that
// goes through a fixed recovery ladder: parse the whole text as a JSON array,
// then parse the slice between the first '[' and the last ']'. Each recovery
// that succeeds leaves a warning, and an exhausted ladder yields an empty
// list plus a failure warning.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Output is one analyzer's raw result.
type Output[T any] struct {
	List  []T
	Text  string
	Typed bool
}

func TypedList[T any](list []T) Output[T] { return Output[T]{List: list, Typed: true} }

func RawText[T any](text string) Output[T] { return Output[T]{Text: text} }

// Step names the rung of the ladder that produced a list.
type Step int

const (
	StepNone Step = iota
	StepFullText
	StepBracketSlice
)

func (s Step) String() string {
	switch s {
	case StepFullText:
		return "parsed the full text response"
	case StepBracketSlice:
		return "parsed the bracketed array inside the text response"
	}
	return "none"
}

// Failure is returned when the ladder is exhausted.
type Failure struct {
	Analyzer string
	Reason   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analyzer %s: unusable output: %s", f.Analyzer, f.Reason)
}

// Recover runs the text ladder. It does not depend on any analyzer.
func Recover[T any](text string) ([]T, Step, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, StepNone, fmt.Errorf("empty output")
	}
	list, fullErr := decodeList[T](trimmed)
	if fullErr == nil {
		return list, StepFullText, nil
	}
	lo, hi := strings.IndexByte(trimmed, '['), strings.LastIndexByte(trimmed, ']')
	if lo < 0 || hi <= lo {
		return nil, StepNone, fullErr
	}
	list, sliceErr := decodeList[T](trimmed[lo : hi+1])
	if sliceErr != nil {
		return nil, StepNone, fmt.Errorf("%v; bracketed slice: %v", fullErr, sliceErr)
	}
	return list, StepBracketSlice, nil
}

func decodeList[T any](s string) ([]T, error) {
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, fmt.Errorf("invalid json: %v", err)
	}
	if _, ok := decoded.([]any); !ok {
		return nil, fmt.Errorf("expected a JSON array, got %s", kindOf(decoded))
	}
	var list []T
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, fmt.Errorf("array entries do not match the contract: %v", err)
	}
	return list, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

// Normalize converts out into a list. valid reports whether one entry meets
// the structural contract; entries that do not are dropped with a warning.
func Normalize[T any](analyzer string, out Output[T], valid func(T) bool) ([]T, []string) {
	var (
		list     []T
		warnings []string
	)
	if out.Typed {
		list = out.List
	} else {
		recovered, step, err := Recover[T](out.Text)
		if err != nil {
			f := &Failure{Analyzer: analyzer, Reason: err.Error()}
			return []T{}, []string{f.Error()}
		}
		list = recovered
		warnings = append(warnings, fmt.Sprintf("analyzer %s: output recovered, %s", analyzer, step))
	}
	if valid == nil {
		return list, warnings
	}
	kept := list[:0:0]
	for _, e := range list {
		if valid(e) {
			kept = append(kept, e)
		}
	}
	if dropped := len(list) - len(kept); dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("analyzer %s: dropped %d entries missing required fields", analyzer, dropped))
		return kept, warnings
	}
	return list, warnings
}

// Decode splits a provider JSON response into the typed path or the text
// ladder. A response object carrying key as an array of T is typed; anything
// else is handed over as text.
func Decode[T any](raw []byte, key string) Output[T] {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err == nil {
		if inner, ok := env[key]; ok {
			var list []T
			if err := json.Unmarshal(inner, &list); err == nil {
				if list == nil {
					list = []T{}
				}
				return TypedList(list)
			}
		}
	}
	return RawText[T](string(raw))
}
