package models

import (
	"encoding/json"
	"testing"
)

// TestFileListPageCursor verifies the cursor is the stringified next_start
// while more items remain and empty at the end of the collection.
func TestFileListPageCursor(t *testing.T) {
	var page FileListPage
	payload := `{
		"success": true,
		"response": [{"id": "981", "name": "quote.docx"}],
		"pagination": {"more_items_in_collection": true, "next_start": 20}
	}`
	if err := json.Unmarshal([]byte(payload), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := page.Cursor(); got != "20" {
		t.Errorf("Cursor() = %q, want 20", got)
	}

	page.Pagination.MoreItemsInCollection = false
	if got := page.Cursor(); got != "" {
		t.Errorf("Cursor() = %q, want empty when no more items", got)
	}
}

// TestFileListPageCursorWithoutPagination verifies a payload with no
// pagination block yields an empty cursor instead of a panic.
func TestFileListPageCursorWithoutPagination(t *testing.T) {
	var page FileListPage
	if err := json.Unmarshal([]byte(`{"success": true, "response": []}`), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := page.Cursor(); got != "" {
		t.Errorf("Cursor() = %q, want empty", got)
	}
}
