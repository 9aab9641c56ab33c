package types

import "time"

// ModelType enumerates what a Model is used for.
type ModelType string

const (
	ModelTypeKnowledgeQA ModelType = "knowledge_qa"
	ModelTypeEmbedding   ModelType = "embedding"
	ModelTypeRerank      ModelType = "rerank"
	ModelTypeVLLM        ModelType = "vllm"
)

// ModelSource distinguishes a remote HTTP provider from a locally hosted
// one; EmbeddingProvider/LLMProvider only ever run ModelSourceRemote in
// this system since it has no local-inference component.
type ModelSource string

const (
	ModelSourceRemote ModelSource = "remote"
)

// ModelParameters carries provider credentials and dimension metadata.
// APIKey/BaseURL are hidden from API responses for builtin models.
type ModelParameters struct {
	BaseURL             string `json:"base_url,omitempty"`
	APIKey              string `json:"api_key,omitempty"`
	EmbeddingParameters struct {
		Dimensions int `json:"dimensions,omitempty"`
	} `json:"embedding_parameters,omitempty"`
	ParameterSize string `json:"parameter_size,omitempty"`
}

// Model is a configured provider+model pair usable for a pipeline step.
type Model struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	TenantID    uint64          `gorm:"index;not null" json:"tenant_id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Type        ModelType       `gorm:"size:32;not null" json:"type"`
	Source      ModelSource     `gorm:"size:16;not null" json:"source"`
	Description string          `gorm:"size:512" json:"description"`
	Parameters  ModelParameters `gorm:"serializer:json" json:"parameters"`
	IsBuiltin   bool            `gorm:"not null;default:false" json:"is_builtin"`
	Status      string          `gorm:"size:16;not null;default:'active'" json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Model) TableName() string { return "models" }

// HideSensitiveInfo returns a copy of m with APIKey/BaseURL cleared when m
// is a builtin model.
func HideSensitiveInfo(m *Model) *Model {
	if !m.IsBuiltin {
		return m
	}
	cp := *m
	cp.Parameters = ModelParameters{
		EmbeddingParameters: m.Parameters.EmbeddingParameters,
		ParameterSize:       m.Parameters.ParameterSize,
	}
	return &cp
}
