package orchestration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// Response is a normalized gateway success. Question is set only while the
// session is in progress and Result only once it is complete.
type Response struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	Question  *domain.Question     `json:"question,omitempty"`
	Result    *domain.Result       `json:"result,omitempty"`
}

// Session returns the controller's view of the session this response describes.
func (r *Response) Session(studentID, parentID string, band domain.GradeBand) *domain.Session {
	return &domain.Session{
		SessionID:       r.SessionID,
		StudentID:       studentID,
		ParentID:        parentID,
		GradeBand:       band,
		Status:          r.Status,
		PendingQuestion: r.Question,
		Result:          r.Result,
	}
}

// wireResponse accepts every field spelling the orchestration service has used.
type wireResponse struct {
	SessionID      any             `json:"sessionId"`
	SessionIDSnake any             `json:"session_id"`
	Status         any             `json:"status"`
	Done           any             `json:"done"`
	Question       json.RawMessage `json:"question"`
	NextQuestion   json.RawMessage `json:"next_question"`
	NextQuestionC  json.RawMessage `json:"nextQuestion"`
	Result         *domain.Result  `json:"result"`
	FinalReport    *domain.Result  `json:"final_report"`
}

type wireQuestion struct {
	ID      any               `json:"id"`
	Text    any               `json:"text"`
	Options []json.RawMessage `json:"options"`
	Target  any               `json:"target"`
}

type wireOption struct {
	Key  any `json:"key"`
	Text any `json:"text"`
}

// decodeResponse normalizes a 2xx body. It never fails on a missing field;
// the caller enforces the exactly-one rule.
func decodeResponse(body []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode orchestration response: %w", err)
	}

	out := &Response{Status: domain.SessionInProgress}
	if id, ok := w.SessionID.(string); ok {
		out.SessionID = id
	} else {
		out.SessionID = stringOrEmpty(w.SessionIDSnake)
	}
	if truthy(w.Done) || stringOrEmpty(w.Status) == string(domain.SessionComplete) {
		out.Status = domain.SessionComplete
	}
	out.Question = normalizeQuestion(firstPresent(w.Question, w.NextQuestion, w.NextQuestionC))
	out.Result = w.Result
	if out.Result == nil {
		out.Result = w.FinalReport
	}
	return out, nil
}

// truthy follows loose JSON truthiness: false, 0, "" and null are false,
// every other value is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// firstPresent returns the first raw value that is set and not JSON null.
func firstPresent(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		if len(r) > 0 && !bytes.Equal(bytes.TrimSpace(r), []byte("null")) {
			return r
		}
	}
	return nil
}

func normalizeQuestion(raw json.RawMessage) *domain.Question {
	if len(raw) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return nil
		}
		return &domain.Question{Text: text}
	}

	var wq wireQuestion
	if err := json.Unmarshal(raw, &wq); err != nil {
		return nil
	}
	q := &domain.Question{
		ID:     stringOrEmpty(wq.ID),
		Text:   stringOrEmpty(wq.Text),
		Target: stringOrEmpty(wq.Target),
	}
	if q.Text == "" {
		return nil
	}
	for _, rawOpt := range wq.Options {
		var wo wireOption
		if err := json.Unmarshal(rawOpt, &wo); err != nil {
			continue
		}
		opt := domain.Option{Key: stringOrEmpty(wo.Key), Text: optionText(wo.Text)}
		if opt.Text == "" {
			continue
		}
		q.Options = append(q.Options, opt)
	}
	return q
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}

// optionText accepts numeric labels as well as strings.
func optionText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// enforceShape applies the exactly-one rule: a complete session carries a
// result and no question, an in-progress one a question and no result.
func enforceShape(resp *Response) *Failure {
	if resp.SessionID == "" {
		return badResponse("Missing sessionId in orchestration response")
	}
	switch resp.Status {
	case domain.SessionComplete:
		if resp.Result == nil {
			return badResponse("missing result from orchestration")
		}
		resp.Question = nil
	default:
		if resp.Question == nil || resp.Question.Text == "" {
			return badResponse("missing question from orchestration")
		}
		resp.Result = nil
	}
	return nil
}
