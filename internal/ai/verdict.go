package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/pagewatch/internal/domain"
)

// jsonContract is appended to every compare instruction so the model
// answers with a structured verdict.
const jsonContract = `Respond with a single JSON object with the fields:
"change_detected" (boolean), "significance_level" ("none", "low", "medium" or "high"),
"summary_of_changes" (string), "detailed_changes" (list of strings),
"focus_area_assessment" (string).`

const noRelevantChanges = "No relevant changes detected for monitored keywords."

// BuildInstruction composes the compare instruction for a request.
func BuildInstruction(req DetectRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Instruction))

	if req.Mode == domain.ModeSpecificElements && req.Keywords != "" {
		fmt.Fprintf(&b, " Focus ONLY on changes related to these keywords/elements: '%s'."+
			" If changes related to these specific keywords are found, describe them clearly."+
			" If no relevant changes related to these keywords are found, simply state '%s'.",
			req.Keywords, noRelevantChanges)
	} else if req.FocusHint != "" {
		fmt.Fprintf(&b, " Pay special attention to changes related to: '%s'.", req.FocusHint)
	}

	b.WriteString("\n\n")
	b.WriteString(jsonContract)
	return strings.TrimSpace(b.String())
}

type rawVerdict struct {
	ChangeDetected  json.RawMessage `json:"change_detected"`
	Significance    string          `json:"significance_level"`
	Summary         json.RawMessage `json:"summary_of_changes"`
	Details         json.RawMessage `json:"detailed_changes"`
	FocusAssessment json.RawMessage `json:"focus_area_assessment"`
	Error           string          `json:"error_message"`
}

// ParseVerdict reads a model answer. JSON answers, fenced or not, are read
// leniently. Anything else becomes the summary of a verdict without a
// change flag.
func ParseVerdict(text, focus string) domain.Verdict {
	body := extractJSON(text)
	if body != "" {
		var raw rawVerdict
		if err := json.Unmarshal([]byte(body), &raw); err == nil {
			v := domain.Verdict{
				ChangeDetected:  parseFlag(raw.ChangeDetected),
				Significance:    strings.ToLower(strings.TrimSpace(raw.Significance)),
				Summary:         flatten(raw.Summary),
				Details:         parseList(raw.Details),
				FocusAssessment: flatten(raw.FocusAssessment),
				Error:           raw.Error,
			}
			if v.Summary == "" && len(v.Details) > 0 {
				v.Summary = strings.Join(v.Details, "\n")
			}
			return v
		}
	}

	return domain.Verdict{
		Significance:    "medium",
		Summary:         strings.TrimSpace(text),
		FocusAssessment: focus,
	}
}

// ErrorVerdict is the verdict of a detector that could not run.
func ErrorVerdict(msg, focus string) domain.Verdict {
	return domain.Verdict{
		ChangeDetected:  domain.Bool(false),
		Significance:    "none",
		Summary:         "AI Analysis Error: " + msg,
		FocusAssessment: focus,
		Error:           msg,
	}
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func parseFlag(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y":
			return domain.Bool(true)
		case "no", "n":
			return domain.Bool(false)
		}
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return &b
		}
	}
	return nil
}

// flatten renders a string field that models sometimes answer as a list or
// an object.
func flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if list := parseList(raw); len(list) > 0 {
		return strings.Join(list, "\n")
	}
	return strings.TrimSpace(string(raw))
}

func parseList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var out []string
		for _, line := range strings.Split(s, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
			if line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		out = append(out, string(item))
	}
	return out
}
