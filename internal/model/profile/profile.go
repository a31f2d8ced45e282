package profile

// Profile describes the assistant the stand-in backend plays.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Tone         string   `json:"tone"`
	Instructions string   `json:"instructions"`
	Welcome      string   `json:"welcome"`
	Topics       []string `json:"topics,omitempty"`
	Rules        []string `json:"rules,omitempty"`
}

// DefaultID is the profile used when none is configured.
const DefaultID = "site-assistant"

// Seed provides the built-in assistant profiles.
func Seed() []Profile {
	return []Profile{
		{
			ID:           DefaultID,
			Name:         "Site Assistant",
			Title:        "website help desk",
			Tone:         "friendly, concise, practical",
			Instructions: "Answer questions from visitors of the website. Keep answers short and point to concrete next steps.",
			Welcome:      "Hi! Ask me anything to get started.",
			Topics:       []string{"getting started", "account help", "general questions"},
			Rules: []string{
				"Use short paragraphs and '- ' bullet lists for steps.",
				"Wrap key terms in **double asterisks**.",
				"Write links as bare https:// URLs.",
				"Never claim to be a doctor, lawyer or financial adviser.",
			},
		},
		{
			ID:           "concise",
			Name:         "Quick Answers",
			Title:        "one-paragraph responder",
			Tone:         "direct, neutral",
			Instructions: "Reply in at most three sentences.",
			Welcome:      "Ask a question and get a short answer.",
			Rules:        []string{"No headings.", "No lists longer than three items."},
		},
	}
}
