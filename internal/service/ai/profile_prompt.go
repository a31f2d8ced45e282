package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tavern/widget/internal/model/profile"
)

// widgetFormatHint tells the model which markup the chat bubble understands.
const widgetFormatHint = `The chat window renders a small subset of markdown:
- lines starting with #, ## or ### lose the hashes
- **text** becomes bold
- bare http(s) URLs become links
- lines starting with "- " become bullets
Anything else is shown as plain text.`

// BuildSystemPrompt creates the system prompt for a profile.
func BuildSystemPrompt(p *profile.Profile) string {
	if p == nil {
		return widgetFormatHint
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s.\n", p.Name, p.Title)
	if p.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", p.Tone)
	}
	if p.Instructions != "" {
		b.WriteString(p.Instructions)
		b.WriteString("\n")
	}
	if len(p.Topics) > 0 {
		b.WriteString("\nYou mostly help with:\n- ")
		b.WriteString(strings.Join(p.Topics, "\n- "))
		b.WriteString("\n")
	}
	if len(p.Rules) > 0 {
		b.WriteString("\nRules:\n- ")
		b.WriteString(strings.Join(p.Rules, "\n- "))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(widgetFormatHint)
	return b.String()
}
