// Package bookstore provides built-in demonstration tools backed by a small
// in-process book catalogue. It exists to exercise the tool-invocation path of
// the drafting engine; the dataset is fixed at compile time and involves no
// external I/O.
//
// Two tools are exported via [Tools]:
//   - "list_books": list catalogue titles, optionally filtered by genre.
//   - "get_book": retrieve one book by its exact title.
//
// All handlers are read-only and safe for concurrent use.
package bookstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/voxgate/voxgate/internal/tool"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// ErrBookNotFound is returned by the "get_book" handler when no catalogue
// entry matches the requested title.
var ErrBookNotFound = errors.New("bookstore: book not found")

// Book is one catalogue entry.
type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

// catalogue is the embedded demonstration dataset.
var catalogue = []Book{
	{Title: "The Pillars of the Earth", Author: "Ken Follett", Genre: "historical"},
	{Title: "Wolf Hall", Author: "Hilary Mantel", Genre: "historical"},
	{Title: "The Name of the Rose", Author: "Umberto Eco", Genre: "historical"},
	{Title: "The Martian", Author: "Andy Weir", Genre: "science fiction"},
	{Title: "A Memory Called Empire", Author: "Arkady Martine", Genre: "science fiction"},
	{Title: "The Big Sleep", Author: "Raymond Chandler", Genre: "mystery"},
	{Title: "Gone Girl", Author: "Gillian Flynn", Genre: "mystery"},
	{Title: "Pride and Prejudice", Author: "Jane Austen", Genre: "romance"},
}

// listBooksArgs is the JSON-decoded input for the "list_books" tool.
type listBooksArgs struct {
	// Genre optionally restricts results to one genre. An empty string lists
	// the whole catalogue.
	Genre string `json:"genre,omitempty"`
}

// getBookArgs is the JSON-decoded input for the "get_book" tool.
type getBookArgs struct {
	// Title is the exact title to look up (case-insensitive).
	Title string `json:"title"`
}

// listBooksHandler implements the "list_books" tool. It renders matching
// titles as one speakable sentence.
func listBooksHandler(_ context.Context, args string) (string, error) {
	var a listBooksArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("bookstore: list_books: failed to parse arguments: %w", err)
	}

	genreLower := strings.ToLower(a.Genre)
	var titles []string
	for _, b := range catalogue {
		if genreLower != "" && strings.ToLower(b.Genre) != genreLower {
			continue
		}
		titles = append(titles, fmt.Sprintf("%s by %s", b.Title, b.Author))
	}

	if len(titles) == 0 {
		return fmt.Sprintf("There are no %s books in the catalogue right now.", a.Genre), nil
	}
	if genreLower == "" {
		return "The catalogue has: " + strings.Join(titles, "; ") + ".", nil
	}
	return fmt.Sprintf("The %s titles in stock are: %s.", a.Genre, strings.Join(titles, "; ")), nil
}

// getBookHandler implements the "get_book" tool. Title matching is exact but
// case-insensitive.
func getBookHandler(_ context.Context, args string) (string, error) {
	var a getBookArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("bookstore: get_book: failed to parse arguments: %w", err)
	}
	if a.Title == "" {
		return "", fmt.Errorf("bookstore: get_book: title must not be empty")
	}

	for _, b := range catalogue {
		if strings.EqualFold(b.Title, a.Title) {
			return fmt.Sprintf("%s is a %s novel by %s.", b.Title, b.Genre, b.Author), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrBookNotFound, a.Title)
}

// Tools returns the catalogue tools ready for registration.
func Tools() []tool.Tool {
	return []tool.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "list_books",
				Description: "List the books available in the shop catalogue, optionally restricted to a single genre. Returns a spoken-style summary of matching titles and authors.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"genre": map[string]any{
							"type":        "string",
							"description": "Genre to filter by (e.g. historical, mystery). Omit to list everything.",
						},
					},
				},
			},
			Handler: listBooksHandler,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_book",
				Description: "Retrieve a single book from the catalogue by its exact title. Use list_books first to discover titles.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{
							"type":        "string",
							"description": "The exact book title to look up.",
						},
					},
					"required": []string{"title"},
				},
			},
			Handler: getBookHandler,
		},
	}
}
