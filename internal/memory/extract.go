package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"tutorgate/internal/models"
)

const extractTemperature = 0.2

const extractSystemPrompt = `You extract personal memories for a long-running assistant.
From the conversation below pick only user information that stays useful over time.

Store:
- likes and dislikes, goals, constraints (time, budget, deadlines), recurring project context, habits and routines

Exclude:
- one-off chatter and short exclamations
- sensitive information: health, political or religious affiliation, sexual life, crime, inferred identity attributes

Output must be a JSON object.
Format: { "items": [ ... ] }
Each item:
{
  "kind": "preference|goal|constraint|profile|project_context",
  "text": "one sentence",
  "importance": 1-5,
  "ttl_days": 7|30|180|365
}

Rules:
- text should be 20 to 120 characters; shorter or longer items are discarded
- only importance 4 or 5 is treated as a storage candidate`

// Completer runs one JSON-mode completion.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Extractor turns one exchange into memory candidates.
type Extractor struct {
	completer Completer
	log       logrus.FieldLogger
	debug     bool
}

func NewExtractor(completer Completer, log logrus.FieldLogger, debug bool) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{completer: completer, log: log, debug: debug}
}

// ExtractCandidates never fails: provider or parse errors yield no candidates.
func (e *Extractor) ExtractCandidates(ctx context.Context, userText, assistantText string) []models.MemoryCandidate {
	user := fmt.Sprintf("[USER]\n%s\n\n[ASSISTANT]\n%s", userText, assistantText)
	raw, err := e.completer.CompleteJSON(ctx, extractSystemPrompt, user, extractTemperature)
	if err != nil {
		e.log.WithError(err).Warn("memory_extract_failed")
		return nil
	}
	if e.debug {
		e.log.WithField("raw", raw).Debug("memory_extract_raw")
	}
	cands, err := ParseCandidates(raw)
	if err != nil {
		if e.debug {
			e.log.WithError(err).Debug("memory_extract_parse_error")
		}
		return nil
	}
	if e.debug {
		e.log.WithField("cleaned", cands).Debug("memory_extract_cleaned")
	}
	return cands
}

type rawCandidate struct {
	Kind       json.RawMessage `json:"kind"`
	Text       json.RawMessage `json:"text"`
	Importance json.RawMessage `json:"importance"`
	TTLDays    json.RawMessage `json:"ttl_days"`
}

var errItemsNotList = errors.New("items is not a list")

// ParseCandidates accepts {"items":[...]} or a bare array, optionally fenced.
func ParseCandidates(raw string) ([]models.MemoryCandidate, error) {
	payload := stripFences(raw)
	if payload == "" {
		payload = "{}"
	}

	var items []json.RawMessage
	switch payload[0] {
	case '[':
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, fmt.Errorf("decode candidate list: %w", err)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			return nil, fmt.Errorf("decode candidate object: %w", err)
		}
		rawItems, ok := obj["items"]
		if !ok || isNull(rawItems) {
			return nil, nil
		}
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return nil, errItemsNotList
		}
	default:
		return nil, fmt.Errorf("unexpected payload %.20q", payload)
	}

	out := make([]models.MemoryCandidate, 0, len(items))
	for _, it := range items {
		var rc rawCandidate
		if err := json.Unmarshal(it, &rc); err != nil {
			// not an object
			continue
		}
		text := strings.TrimSpace(stringValue(rc.Text))
		if text == "" {
			continue
		}
		out = append(out, models.MemoryCandidate{
			Kind:       strings.TrimSpace(stringValue(rc.Kind)),
			Text:       text,
			Importance: lenientInt(rc.Importance),
			TTLDays:    lenientInt(rc.TTLDays),
		})
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an optional language tag on the opening line
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func stringValue(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func lenientInt(raw json.RawMessage) int {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return truncate(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(f)
		}
	}
	return 0
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}
