// Package metadata defines the file metadata model and the store contract
// it is persisted through. PostgreSQL is the authoritative backend; a memory
// backend serves tests and single-node development.
package metadata

import "time"

// Visibility controls who may read a file beyond its owner.
type Visibility string

const (
	// VisibilityPrivate restricts access to the owner.
	VisibilityPrivate Visibility = "PRIVATE"
	// VisibilityFamily grants access to every member of the owning family.
	VisibilityFamily Visibility = "FAMILY"
	// VisibilityPublic grants read access to any authenticated user.
	VisibilityPublic Visibility = "PUBLIC"
)

// KnownVisibility reports whether v is one of the defined enum values.
func KnownVisibility(v Visibility) bool {
	switch v {
	case VisibilityPrivate, VisibilityFamily, VisibilityPublic:
		return true
	}
	return false
}

// Status tracks the upload lifecycle of a row. A row is reserved as pending
// at request admission and finalized to active once the payload is stored.
// Pending rows are invisible to all user-facing queries.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// FileMetadata is one stored file. Rows are soft-deleted: Deleted hides the
// row from user-facing queries while retaining it for audit.
type FileMetadata struct {
	FileID   string `json:"fileId"`
	FamilyID string `json:"familyId"`
	OwnerID  string `json:"ownerId"`

	OriginalName string   `json:"originalName"`
	FolderPath   string   `json:"folderPath"`
	FileType     string   `json:"fileType"`
	Category     Category `json:"category"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`

	FileSize    int64  `json:"fileSize"`
	StorageType string `json:"storageType"`
	StoragePath string `json:"storagePath"`

	Visibility Visibility `json:"visibility"`
	Status     Status     `json:"status"`

	CreateTime     time.Time `json:"createTime"`
	UpdateTime     time.Time `json:"updateTime"`
	UploadTime     time.Time `json:"uploadTime"`
	LastAccessTime time.Time `json:"lastAccessTime"`

	AccessCount int64 `json:"accessCount"`
	Deleted     bool  `json:"-"`
}

// Extension returns the lowercased file extension without the leading dot.
func (m *FileMetadata) Extension() string {
	return ExtensionOf(m.OriginalName)
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate cached or stored rows in place.
func (m *FileMetadata) Clone() *FileMetadata {
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return &c
}

// FamilyStorageStats is the per-family counter row, maintained in the same
// transaction as the metadata write it accounts for. TotalFiles and
// TotalSize never go negative.
type FamilyStorageStats struct {
	FamilyID string `json:"familyId"`

	TotalFiles     int64              `json:"totalFiles"`
	TotalSize      int64              `json:"totalSize"`
	CategoryCounts map[Category]int64 `json:"categoryCounts"`

	LargestFileSize    int64     `json:"largestFileSize"`
	LargestFileName    string    `json:"largestFileName"`
	MostRecentFileTime time.Time `json:"mostRecentFileTime"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// NewFamilyStorageStats returns an empty stats row for a family.
func NewFamilyStorageStats(familyID string) *FamilyStorageStats {
	return &FamilyStorageStats{
		FamilyID:       familyID,
		CategoryCounts: make(map[Category]int64),
	}
}

// Clone returns a deep copy.
func (s *FamilyStorageStats) Clone() *FamilyStorageStats {
	c := *s
	c.CategoryCounts = make(map[Category]int64, len(s.CategoryCounts))
	for k, v := range s.CategoryCounts {
		c.CategoryCounts[k] = v
	}
	return &c
}

// FamilyAggregate is a recount over the live rows of one family, the
// authoritative source when a stats row needs recomputing.
type FamilyAggregate struct {
	TotalFiles         int64
	TotalSize          int64
	CategoryCounts     map[Category]int64
	LargestFileSize    int64
	LargestFileName    string
	MostRecentFileTime time.Time
}
