package model

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file indexed into the owner's knowledge base.
type Document struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	FileName       string     `json:"fileName"`
	FileSize       int64      `json:"fileSize"`
	MimeType       string     `json:"mimeType"`
	CollectionName string     `json:"collectionName"`
	ChunkIDs       []string   `json:"chunkIds"`
	TotalChunks    int        `json:"totalChunks"`
	UploadedAt     time.Time  `json:"uploadedAt"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
}

func NewDocument(userID, fileName, mimeType string, size int64, now time.Time) *Document {
	return &Document{
		ID:             uuid.NewString(),
		UserID:         userID,
		FileName:       fileName,
		FileSize:       size,
		MimeType:       mimeType,
		CollectionName: KnowledgeBase(userID),
		ChunkIDs:       []string{},
		UploadedAt:     now,
	}
}

// KnowledgeBase names the vector collection holding a user's documents.
func KnowledgeBase(userID string) string { return "kb_" + userID }

// SearchCollection names the ephemeral collection a research turn fills.
func SearchCollection(messageID string) string { return "job_" + messageID }
