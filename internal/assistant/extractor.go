package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// BadResponseError reports an extraction response that could not be
// parsed as a JSON array. The raw response is kept so the caller can
// show the user what came back.
type BadResponseError struct {
	Raw string
}

func (e *BadResponseError) Error() string {
	return "extraction response is not a JSON array"
}

// ExtractItems expands free text into individual item texts using the
// current list as context. The model is asked for a JSON array of
// strings; any other shape is a *BadResponseError.
func (c *Client) ExtractItems(ctx context.Context, text, listTitle string, current []string) ([]string, error) {
	result, err := c.Complete(ctx, ExtractionPrompt(text, listTitle, current))
	if err != nil {
		return nil, err
	}

	return ParseExtraction(result)
}

// ExtractionPrompt builds the bulk-extraction prompt. Shared with
// clients that reach the model through the completion endpoint instead.
func ExtractionPrompt(text, listTitle string, current []string) string {
	return fmt.Sprintf(`Create a list of individual items from this text, considering this is a list titled %q. If the text includes phrases like "add more items" or "add to the list", suggest relevant items that fit the list title and aren't already in the list. Return result as a JSON array of strings.

Current list items: %s

Examples:
Input: "milk, bread and eggs" (list: "Groceries", empty list)
Output: ["milk", "bread", "eggs"]

Input: "add more items" (list: "Groceries", current: milk, bread)
Output: ["eggs", "cheese", "butter"]

Input: "add more" (list: "Office Supplies", current: paper, pens)
Output: ["stapler", "sticky notes", "paper clips"]

Create a list of items based on the following text: %q

Your answer should include ONLY a valid JSON array of strings in the same language as the title and other items.`,
		listTitle, strings.Join(current, ", "), text)
}

// ParseExtraction decodes a completion response expected to be a JSON
// array of strings.
func ParseExtraction(raw string) ([]string, error) {
	var texts []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &texts); err != nil {
		return nil, &BadResponseError{Raw: raw}
	}
	return texts, nil
}
