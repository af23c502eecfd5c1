package passage

import (
	"errors"
	"testing"
)

func loadTestDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := Load("testdata/kjv.yml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return doc
}

func TestDocument_Chapter(t *testing.T) {
	doc := loadTestDoc(t)

	units, ref, err := doc.Chapter("jhn", 1)
	if err != nil {
		t.Fatalf("Chapter failed: %v", err)
	}
	if ref != "John 1" {
		t.Errorf("reference = %q", ref)
	}
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	u := units[1]
	if u.Index != 1 || u.Number != 2 || u.BookID != "JHN" || u.TranslationID != "kjv" || u.Chapter != 1 {
		t.Errorf("unit = %+v", u)
	}

	if _, _, err := doc.Chapter("JHN", 9); !errors.Is(err, ErrChapterNotFound) {
		t.Errorf("missing chapter err = %v", err)
	}
	if _, _, err := doc.Chapter("XYZ", 1); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("missing book err = %v", err)
	}
}

func TestDocument_FindBook(t *testing.T) {
	doc := loadTestDoc(t)

	tests := []struct {
		query string
		want  string
		err   bool
	}{
		{"JHN", "JHN", false},
		{"john", "JHN", false},
		{"Jhn", "JHN", false},
		{"act", "ACT", false},
		{"zzz", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			b, err := doc.FindBook(tt.query)
			if tt.err {
				if !errors.Is(err, ErrBookNotFound) {
					t.Errorf("err = %v, want ErrBookNotFound", err)
				}
				return
			}
			if err != nil || b.ID != tt.want {
				t.Errorf("FindBook(%q) = %v, %v", tt.query, b, err)
			}
		})
	}
}

func TestDocument_NextChapter(t *testing.T) {
	doc := loadTestDoc(t)

	tests := []struct {
		book    string
		chapter int
		wantID  string
		wantCh  int
		wantOK  bool
	}{
		{"JHN", 1, "JHN", 2, true},
		{"JHN", 2, "ACT", 1, true},
		{"ACT", 1, "", 0, false},
		{"XYZ", 1, "", 0, false},
	}
	for _, tt := range tests {
		id, ch, ok := doc.NextChapter(tt.book, tt.chapter)
		if id != tt.wantID || ch != tt.wantCh || ok != tt.wantOK {
			t.Errorf("NextChapter(%s, %d) = %s, %d, %v", tt.book, tt.chapter, id, ch, ok)
		}
	}
}

func TestDocument_Language(t *testing.T) {
	doc := loadTestDoc(t)
	if got := doc.Language(); got != "en" {
		t.Errorf("declared language = %q", got)
	}

	doc.Lang = ""
	doc.Books = []Book{{ID: "JHN", Name: "Juan", Chapters: []Chapter{{Number: 1, Verses: []string{
		"En el principio era el Verbo, y el Verbo era con Dios, y el Verbo era Dios.",
		"Este era en el principio con Dios. Todas las cosas por él fueron hechas, y sin él nada de lo que ha sido hecho, fue hecho.",
	}}}}}
	if got := doc.Language(); got != "es" {
		t.Errorf("detected language = %q, want es", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":          "translation: [",
		"no translation":    "books:\n  - id: A\n    name: A\n",
		"no books":          "translation: kjv\n",
		"duplicate book":    "translation: kjv\nbooks:\n  - id: A\n    name: A\n  - id: a\n    name: B\n",
		"duplicate chapter": "translation: kjv\nbooks:\n  - id: A\n    name: A\n    chapters:\n      - number: 1\n      - number: 1\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("err = %v, want ErrInvalidDocument", err)
			}
		})
	}
}
