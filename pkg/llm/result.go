package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AnalysisResult is the verdict an attempt must produce: exactly these four
// fields, nothing else. Confidence is a pointer so an absent field fails
// required instead of passing as 0.
type AnalysisResult struct {
	Tickers          []string `json:"tickers" validate:"dive,required"`
	Sentiment        string   `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	Confidence       *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
	ReasoningSummary string   `json:"reasoning_summary" validate:"required,max=280"`
}

// ParseAnalysisResult decodes and validates a model's output text. It returns
// the validated result together with the decoded JSON object for the audit
// trail. Tickers are trimmed, uppercased, and deduplicated; the summary is
// trimmed before the length check, so a whitespace-only summary fails
// required. Unknown keys and non-object roots are rejected.
func ParseAnalysisResult(text string) (*AnalysisResult, map[string]any, error) {
	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, nil, err
	}
	outputJSON, ok := payload.(map[string]any)
	if !ok {
		return nil, nil, errors.New("JSON root must be an object")
	}

	var result AnalysisResult
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return nil, nil, err
	}

	result.Tickers = cleanResultTickers(result.Tickers)
	result.ReasoningSummary = strings.TrimSpace(result.ReasoningSummary)

	if err := validate.Struct(&result); err != nil {
		return nil, nil, err
	}
	return &result, outputJSON, nil
}

// cleanResultTickers normalizes tickers the way they are persisted: trimmed,
// uppercased, first occurrence wins. Entries that are blank after trimming
// are kept so validation can reject them.
func cleanResultTickers(tickers []string) []string {
	cleaned := make([]string, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, ticker := range tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		cleaned = append(cleaned, ticker)
	}
	return cleaned
}

// classifyParseError prefixes a parse failure with its class so the worker's
// retry predicate can see it in the job's last_error.
func classifyParseError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Sprintf("validation_error: %v", err)
	}
	return fmt.Sprintf("json_error: %v", err)
}
