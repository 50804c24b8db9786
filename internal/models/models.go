package models

import (
	"time"
)

// Document statuses. A document moves pending -> processing -> completed | failed,
// and back to processing on update, rollback or retry.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ProcessingRules control cleaning and chunking for every document in a space.
type ProcessingRules struct {
	RemoveExtraWhitespace bool `json:"remove_extra_whitespace" yaml:"remove_extra_whitespace"`
	RemoveURLsEmails      bool `json:"remove_urls_emails" yaml:"remove_urls_emails"`
	TargetTokens          int  `json:"target_tokens" yaml:"target_tokens"`
	OverlapTokens         int  `json:"overlap_tokens" yaml:"overlap_tokens"`
	MaxFragmentLen        int  `json:"max_fragment_len" yaml:"max_fragment_len"`
}

// KnowledgeSpace is the per-user container holding processing configuration.
type KnowledgeSpace struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Rules     ProcessingRules `db:"processing_rules" json:"processing_rules"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded file and its ingestion state.
type Document struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	SpaceID         string     `db:"space_id" json:"space_id"`
	BatchID         *string    `db:"batch_id" json:"batch_id,omitempty"`
	FileName        string     `db:"file_name" json:"file_name"`
	StorageKey      string     `db:"storage_key" json:"storage_key"`
	ContentType     string     `db:"content_type" json:"content_type"`
	SizeBytes       int64      `db:"size_bytes" json:"size_bytes"`
	Language        string     `db:"language" json:"language"`
	Status          string     `db:"status" json:"status"`                 // pending | processing | completed | failed
	Progress        int        `db:"progress" json:"progress"`             // 0..100
	ProgressStage   string     `db:"progress_stage" json:"progress_stage"` // extracting, chunking, ...
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	Version         int        `db:"version" json:"version"`
	LastUpdatedHash string     `db:"last_updated_hash" json:"last_updated_hash"`
	ChunkCount      int        `db:"chunk_count" json:"chunk_count"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one persisted text chunk. ID doubles as the vector point id.
type DocumentChunk struct {
	ID          int64     `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	ChunkIndex  int       `db:"chunk_index" json:"chunk_index"`
	Text        string    `db:"text" json:"text"`
	ContentHash string    `db:"content_hash" json:"content_hash"` // md5(text)
	StartChar   int       `db:"start_char" json:"start_char"`
	EndChar     int       `db:"end_char" json:"end_char"`
	Page        int       `db:"page" json:"page,omitempty"`
	Heading     string    `db:"heading" json:"heading,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EmbeddingCacheEntry is a content-addressed embedding shared across users.
type EmbeddingCacheEntry struct {
	Model     string    `db:"model" json:"model"`
	Provider  string    `db:"provider" json:"provider"`
	TextHash  string    `db:"text_hash" json:"text_hash"`
	Embedding []float32 `db:"embedding" json:"embedding"` // pgvector column
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DocumentVersion is an archived snapshot of a document's file before it was overwritten.
type DocumentVersion struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	VersionNumber int       `db:"version_number" json:"version_number"`
	FilePath      string    `db:"file_path" json:"file_path"`
	FileHash      string    `db:"file_hash" json:"file_hash"`
	ChunkCount    int       `db:"chunk_count" json:"chunk_count"`
	ChangeSummary string    `db:"change_summary" json:"change_summary"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Batch tracks a multi-document upload.
type Batch struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	TotalCount     int       `db:"total_count" json:"total_count"`
	CompletedCount int       `db:"completed_count" json:"completed_count"`
	FailedCount    int       `db:"failed_count" json:"failed_count"`
	Status         string    `db:"status" json:"status"` // pending | processing | completed | failed
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// DeriveBatchStatus computes a batch's status from its counters.
// A batch with at least one success is completed even when some documents failed;
// FailedCount is the signal for partial success.
func DeriveBatchStatus(total, completed, failed int) string {
	switch {
	case completed+failed < total:
		return StatusProcessing
	case completed == 0 && failed > 0:
		return StatusFailed
	default:
		return StatusCompleted
	}
}
