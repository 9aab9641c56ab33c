package types

// PurchaseIntent, UrgencyLevel and Sentiment enumerate the closed value
// sets a conversation summary classifies a closed conversation into.
type PurchaseIntent string

const (
	IntentHigh   PurchaseIntent = "High"
	IntentMedium PurchaseIntent = "Medium"
	IntentLow    PurchaseIntent = "Low"
	IntentNone   PurchaseIntent = "None"
)

type UrgencyLevel string

const (
	UrgencyUrgent UrgencyLevel = "Urgent"
	UrgencyNormal UrgencyLevel = "Normal"
	UrgencyLow    UrgencyLevel = "Low"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// ContactInfo is the summarizer's best-effort extraction of lead details.
type ContactInfo struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// ConversationSummary is the JSON-fenced document a closed conversation is
// distilled into, produced by SummarizerAndSync and consumed by every
// configured CRM adapter.
type ConversationSummary struct {
	PurchaseIntent    PurchaseIntent `json:"purchase_intent"`
	UrgencyLevel      UrgencyLevel   `json:"urgency_level"`
	SentimentScore    Sentiment      `json:"sentiment_score"`
	DetectedBudget    *float64       `json:"detected_budget"`
	AISummary         string         `json:"ai_summary"`
	ContactInfo       ContactInfo    `json:"contact_info"`
	ClientDescription string         `json:"client_description"`
	ConversationStart string         `json:"conversation_start"`
	ConversationEnd   string         `json:"conversation_end"`
}
