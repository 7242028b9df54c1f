package assistant

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf16"

	"go.uber.org/zap"
)

// DefaultCategory is the placeholder symbol an item carries until a
// valid prediction replaces it.
const DefaultCategory = "📝"

// PredictCategory asks for a single-emoji classification of a list item
// in the context of its list title. Any failure, and any prediction
// that is not a short emoji, resolves to DefaultCategory.
func (c *Client) PredictCategory(ctx context.Context, text, listTitle string) string {
	prediction, err := c.Complete(ctx, CategoryPrompt(text, listTitle))
	if err != nil {
		c.logger.Error("Failed to predict category",
			zap.Error(err),
			zap.String("text", text))
		return DefaultCategory
	}

	return ValidateCategory(prediction)
}

// CategoryPrompt builds the classification prompt. Shared with clients
// that reach the model through the completion endpoint instead.
func CategoryPrompt(text, listTitle string) string {
	return fmt.Sprintf(`Based on the todo list title %q, categorize this item: %q.
If this is a shopping list:
- For food items, use: 🥛 for dairy, 🥩 for meat, 🥖 for bakery, 🥫 for canned goods, 🥬 for produce
- For non-food items, use: 🧹 for cleaning, 🧴 for personal care

Respond with only an emoji.
Examples:
- 🥛 for milk, yogurt, cheese
- 🥬 for fruits and vegetables
- 🧹 for household supplies`, listTitle, text)
}

// ValidateCategory returns the prediction if it is a plausible emoji
// category, otherwise DefaultCategory. Length is measured in UTF-16
// code units, so a single non-BMP emoji (2 units) passes but an emoji
// plus anything else does not.
func ValidateCategory(prediction string) string {
	if prediction == "" || len(utf16.Encode([]rune(prediction))) > 2 {
		return DefaultCategory
	}
	for _, r := range prediction {
		if isEmoji(r) {
			return prediction
		}
	}
	return DefaultCategory
}

// isEmoji covers the blocks the category prompt draws from plus the
// general symbol classes. Not a full Unicode emoji test; it doesn't
// need to be, the caller already bounds the length.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs incl. supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return unicode.Is(unicode.So, r)
}
