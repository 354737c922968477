package bookstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// TestListBooks_FilterByGenre checks genre filtering and the spoken rendering.
func TestListBooks_FilterByGenre(t *testing.T) {
	out, err := listBooksHandler(context.Background(), `{"genre":"historical"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, title := range []string{"The Pillars of the Earth", "Wolf Hall", "The Name of the Rose"} {
		if !strings.Contains(out, title) {
			t.Errorf("expected output to contain %q, got %q", title, out)
		}
	}
	if strings.Contains(out, "The Martian") {
		t.Errorf("expected non-historical titles to be filtered out, got %q", out)
	}
}

// TestListBooks_NoFilter checks that an empty genre lists the whole catalogue.
func TestListBooks_NoFilter(t *testing.T) {
	out, err := listBooksHandler(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "The Martian") || !strings.Contains(out, "Gone Girl") {
		t.Errorf("expected full catalogue, got %q", out)
	}
}

// TestListBooks_UnknownGenre checks the speakable empty result.
func TestListBooks_UnknownGenre(t *testing.T) {
	out, err := listBooksHandler(context.Background(), `{"genre":"western"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no western books") {
		t.Errorf("unexpected empty-result rendering: %q", out)
	}
}

// TestListBooks_MalformedArguments checks the parse failure path.
func TestListBooks_MalformedArguments(t *testing.T) {
	if _, err := listBooksHandler(context.Background(), `{genre}`); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

// TestGetBook_Found checks case-insensitive title lookup.
func TestGetBook_Found(t *testing.T) {
	out, err := getBookHandler(context.Background(), `{"title":"wolf hall"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Hilary Mantel") {
		t.Errorf("expected author in rendering, got %q", out)
	}
}

// TestGetBook_NotFound checks the not-found sentinel.
func TestGetBook_NotFound(t *testing.T) {
	_, err := getBookHandler(context.Background(), `{"title":"Nonexistent"}`)
	if !errors.Is(err, ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

// TestGetBook_EmptyTitle checks input validation.
func TestGetBook_EmptyTitle(t *testing.T) {
	if _, err := getBookHandler(context.Background(), `{}`); err == nil {
		t.Fatal("expected error for empty title")
	}
}

// TestTools_Declarations checks the exported schemas.
func TestTools_Declarations(t *testing.T) {
	ts := Tools()
	if len(ts) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(ts))
	}
	if ts[0].Definition.Name != "list_books" || ts[1].Definition.Name != "get_book" {
		t.Errorf("unexpected tool names: %q, %q", ts[0].Definition.Name, ts[1].Definition.Name)
	}
	for _, tl := range ts {
		if tl.Handler == nil {
			t.Errorf("tool %q has no handler", tl.Definition.Name)
		}
		if tl.Definition.Parameters["type"] != "object" {
			t.Errorf("tool %q: expected object parameter schema", tl.Definition.Name)
		}
	}
}
