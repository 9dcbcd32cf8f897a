package llm

import "strings"

// BuildInputText renders an event as the labelled block embedded in every
// prompt. URL and content lines are omitted when empty; the title line is
// always present.
func BuildInputText(title, url, content string) string {
	parts := []string{"Title: " + title}
	if url != "" {
		parts = append(parts, "URL: "+url)
	}
	if content != "" {
		parts = append(parts, "Content: "+content)
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt is the first-attempt prompt: a plain analyst instruction
// demanding pure JSON with the four result keys.
func BuildPrompt(inputText string) string {
	return "You are a financial news analyst. " +
		"Analyze the news below and output ONLY valid JSON with keys: " +
		"tickers (list of strings), sentiment (positive|neutral|negative), " +
		"confidence (0..1), reasoning_summary (<=280 chars). " +
		"No markdown, no extra text.\n\n" +
		"NEWS:\n" + inputText + "\n"
}

// BuildRetryPrompt is the stricter re-prompt used after a failed attempt. It
// inlines a literal template so the model has an exact shape to copy.
func BuildRetryPrompt(inputText string) string {
	const template = `{"tickers":["AAPL"],"sentiment":"neutral","confidence":0.5,` +
		`"reasoning_summary":"Short reason."}`
	return "STRICT MODE: Output ONLY JSON matching this exact schema. " +
		"Do not include any extra keys, markdown, or commentary.\n" +
		"TEMPLATE:\n" + template + "\n\n" +
		"NEWS:\n" + inputText + "\n"
}
