package core

import (
	"time"
)

// Typed filter records for repository listings. These replace the legacy
// query-map fan-outs: every predicate here maps onto an indexed column.

// sort orders accepted by the submission listing
type SortOrder string

const (
	SortByCreatedDesc  SortOrder = "dateCreated"
	SortByModifiedDesc SortOrder = "lastModified"
)

// a page request; Page is 1-based
type Page struct {
	Number int
	Size   int
}

// the pagination block returned with every paginated listing
type PageInfo struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"totalSubmissions"`
}

// computes the page info for a listing with the given total number of items
func NewPageInfo(page Page, total int) PageInfo {
	totalPages := 0
	if page.Size > 0 {
		totalPages = (total + page.Size - 1) / page.Size
	}
	return PageInfo{
		Page:       page.Number,
		Size:       page.Size,
		TotalPages: totalPages,
		Total:      total,
	}
}

// predicates for submission listings; zero values mean "no constraint"
type SubmissionFilter struct {
	ProjectId     string
	Name          string // substring match
	Published     *bool
	Ingested      *bool
	CreatedStart  time.Time
	CreatedEnd    time.Time
	ModifiedStart time.Time
	ModifiedEnd   time.Time
	Sort          SortOrder
}

// predicates for object listings; when ObjectTypes is non-empty its order is
// preserved as the primary sort key, with dateCreated ascending within each
// type
type ObjectFilter struct {
	SubmissionId string
	ObjectTypes  []string
	ObjectId     string
	Name         string
}

// predicates for file listings
type FileFilter struct {
	ProjectId    string
	SubmissionId string
	IngestStatus IngestStatus
}
