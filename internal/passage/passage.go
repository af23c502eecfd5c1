// Package passage loads scripture documents and turns chapters into the
// ordered units the engine speaks.
package passage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/goccy/go-yaml"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"
)

var (
	// ErrBookNotFound is returned when no book matches a query.
	ErrBookNotFound = errors.New("book not found")

	// ErrChapterNotFound is returned for a chapter the book lacks.
	ErrChapterNotFound = errors.New("chapter not found")

	// ErrInvalidDocument is returned when a document fails validation.
	ErrInvalidDocument = errors.New("invalid passage document")
)

// Unit is one spoken verse. Index is its position in the chapter sequence.
type Unit struct {
	Index         int
	Text          string
	TranslationID string
	BookID        string
	BookName      string
	Chapter       int
	Number        int
}

// Document is a translation loaded from YAML.
type Document struct {
	Translation string `yaml:"translation"`
	Lang        string `yaml:"language"`
	Books       []Book `yaml:"books"`
}

// Book is one book of a translation.
type Book struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Chapters []Chapter `yaml:"chapters"`
}

// Chapter holds the verses of one chapter, in order.
type Chapter struct {
	Number int      `yaml:"number"`
	Verses []string `yaml:"verses"`
}

// Load reads and validates a document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read passage document: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) validate() error {
	if strings.TrimSpace(d.Translation) == "" {
		return fmt.Errorf("%w: missing translation", ErrInvalidDocument)
	}
	if len(d.Books) == 0 {
		return fmt.Errorf("%w: no books", ErrInvalidDocument)
	}
	seen := make(map[string]bool, len(d.Books))
	for _, b := range d.Books {
		if b.ID == "" || b.Name == "" {
			return fmt.Errorf("%w: book needs id and name", ErrInvalidDocument)
		}
		if seen[strings.ToLower(b.ID)] {
			return fmt.Errorf("%w: duplicate book %q", ErrInvalidDocument, b.ID)
		}
		seen[strings.ToLower(b.ID)] = true

		chapters := make(map[int]bool, len(b.Chapters))
		for _, c := range b.Chapters {
			if c.Number < 1 || chapters[c.Number] {
				return fmt.Errorf("%w: %s has bad or duplicate chapter %d", ErrInvalidDocument, b.ID, c.Number)
			}
			chapters[c.Number] = true
		}
	}
	return nil
}

// FindBook matches query against book ids and names, exactly first, then
// fuzzily.
func (d *Document) FindBook(query string) (*Book, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrBookNotFound
	}
	for i := range d.Books {
		if strings.EqualFold(d.Books[i].ID, q) || strings.EqualFold(d.Books[i].Name, q) {
			return &d.Books[i], nil
		}
	}

	names := make([]string, len(d.Books))
	for i, b := range d.Books {
		names[i] = b.Name
	}
	matches := fuzzy.Find(q, names)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBookNotFound, query)
	}
	return &d.Books[matches[0].Index], nil
}

// Chapter returns the units of chapter n of book and its reference, e.g.
// "John 3".
func (d *Document) Chapter(bookID string, n int) ([]Unit, string, error) {
	book, err := d.book(bookID)
	if err != nil {
		return nil, "", err
	}
	for _, c := range book.Chapters {
		if c.Number != n {
			continue
		}
		units := make([]Unit, 0, len(c.Verses))
		for i, text := range c.Verses {
			units = append(units, Unit{
				Index:         i,
				Text:          strings.TrimSpace(text),
				TranslationID: d.Translation,
				BookID:        book.ID,
				BookName:      book.Name,
				Chapter:       n,
				Number:        i + 1,
			})
		}
		return units, fmt.Sprintf("%s %d", book.Name, n), nil
	}
	return nil, "", fmt.Errorf("%w: %s %d", ErrChapterNotFound, book.Name, n)
}

// NextChapter returns the chapter after (bookID, n): the next chapter of
// the same book, or the first chapter of the following book.
func (d *Document) NextChapter(bookID string, n int) (string, int, bool) {
	for i, b := range d.Books {
		if !strings.EqualFold(b.ID, bookID) {
			continue
		}
		next := 0
		for _, c := range b.Chapters {
			if c.Number > n && (next == 0 || c.Number < next) {
				next = c.Number
			}
		}
		if next > 0 {
			return b.ID, next, true
		}
		for _, nb := range d.Books[i+1:] {
			if first := firstChapter(nb); first > 0 {
				return nb.ID, first, true
			}
		}
		return "", 0, false
	}
	return "", 0, false
}

// Language returns the declared language as a BCP 47 tag, or one detected
// from the text when the declaration is missing or invalid. It returns ""
// when detection is not reliable.
func (d *Document) Language() string {
	if tag, err := language.Parse(d.Lang); err == nil && d.Lang != "" {
		return tag.String()
	}

	var sample strings.Builder
	for _, b := range d.Books {
		for _, c := range b.Chapters {
			for _, v := range c.Verses {
				sample.WriteString(v)
				sample.WriteByte(' ')
				if sample.Len() > 2000 {
					return detect(sample.String())
				}
			}
		}
	}
	return detect(sample.String())
}

func detect(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	tag, err := language.Parse(info.Lang.Iso6391())
	if err != nil {
		return ""
	}
	return tag.String()
}

func (d *Document) book(id string) (*Book, error) {
	for i := range d.Books {
		if strings.EqualFold(d.Books[i].ID, id) {
			return &d.Books[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBookNotFound, id)
}

func firstChapter(b Book) int {
	first := 0
	for _, c := range b.Chapters {
		if first == 0 || c.Number < first {
			first = c.Number
		}
	}
	return first
}
