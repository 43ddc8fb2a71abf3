package models

import "encoding/json"

// File is a catalog entry: a backend-owned file record attached to a CRM
// deal. The client holds a read-only, possibly-stale projection.
type File struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UpdateTime string `json:"update_time"`
	DealID     string `json:"deal_id"`
}

// Pagination is the CRM cursor envelope. NextStart is opaque to the client;
// json.Number keeps it untouched whether the server sends a number or a
// string.
type Pagination struct {
	MoreItemsInCollection bool        `json:"more_items_in_collection"`
	NextStart             json.Number `json:"next_start"`
}

// FileListPage is one page of the deal's file list.
type FileListPage struct {
	Success    bool       `json:"success"`
	Response   []File     `json:"response"`
	Pagination Pagination `json:"pagination"`
}

// Cursor returns the opaque cursor for the next page, or "" when the server
// reports no more items.
func (p *FileListPage) Cursor() string {
	if !p.Pagination.MoreItemsInCollection {
		return ""
	}
	return p.Pagination.NextStart.String()
}
