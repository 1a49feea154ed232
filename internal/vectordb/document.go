package vectordb

import "time"

// DocumentType categorizes the kind of entity embedded in the vector store.
type DocumentType string

const (
	DocTypePhenomenon        DocumentType = "phenomenon"
	DocTypeRootCause         DocumentType = "root_cause"
	DocTypeTicketDescription DocumentType = "ticket_description"
	DocTypeAnomalyDescription DocumentType = "anomaly_description"
)

// Document represents a piece of content to be stored and searched.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata holds structured information about a document.
type DocumentMetadata struct {
	EntityID    string
	Type        DocumentType
	ContentHash string
	LastUpdated time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter allows narrowing search results by metadata fields.
type SearchFilter struct {
	Type *DocumentType
}
