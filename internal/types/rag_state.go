package types

// RAGState is threaded through the RAG query pipeline stages. Each stage
// reads fields populated by the previous one and writes its own.
type RAGState struct {
	TenantID  uint64 `json:"tenant_id"`
	SessionID string `json:"session_id,omitempty"`

	Query           string `json:"query"`
	SearchQuery     string `json:"-"` // contextualized/rewritten query
	HyDEPassage     string `json:"-"` // hypothetical passage used only for embedding
	ExternalContext string `json:"external_context,omitempty"`

	UseHyDE   bool `json:"use_hyde"`
	UseRerank bool `json:"use_rerank"`

	ComplexityScore int  `json:"complexity_score"`
	PricingIntent   bool `json:"pricing_intent"`
	RequiresRAG     bool `json:"-"`

	Provider string `json:"provider,omitempty"`

	History []*History `json:"-"`

	RetrievedHits []Hit `json:"-"`
	RerankedHits  []Hit `json:"-"`

	LanguageInstruction string `json:"-"`

	Answer         string `json:"-"`
	ReferencesUsed bool   `json:"-"`
}

// Clone returns a shallow copy suitable for handing to a concurrent
// sub-pipeline, deep-copying only the slice fields a sub-pipeline might
// append to independently.
func (s *RAGState) Clone() *RAGState {
	cp := *s
	cp.History = append([]*History(nil), s.History...)
	cp.RetrievedHits = append([]Hit(nil), s.RetrievedHits...)
	cp.RerankedHits = append([]Hit(nil), s.RerankedHits...)
	return &cp
}

// EventType enumerates the RAG pipeline's internal stages: each stage is
// a step activated for one EventType and chained to the next.
type EventType string

const (
	EventLoadHistory   EventType = "load_history"
	EventContextualize EventType = "contextualize"
	EventHyDE          EventType = "hyde"
	EventRetrieve      EventType = "retrieve"
	EventRerank        EventType = "rerank"
	EventGenerate      EventType = "generate"
	EventSmallTalk     EventType = "small_talk"
	EventPersist       EventType = "persist"
)

// QueryPipeline is the RAG-path stage order; SmallTalkPipeline skips
// retrieval entirely.
var QueryPipeline = []EventType{
	EventLoadHistory,
	EventContextualize,
	EventHyDE,
	EventRetrieve,
	EventRerank,
	EventGenerate,
	EventPersist,
}

var SmallTalkPipeline = []EventType{
	EventLoadHistory,
	EventContextualize,
	EventSmallTalk,
	EventPersist,
}
