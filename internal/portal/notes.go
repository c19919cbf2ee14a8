package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"cyberbook/internal/docstore"
	"cyberbook/internal/domain"
)

// Note is a reader's note attached to a chapter.
type Note struct {
	ID        string `json:"id"`
	Chapter   string `json:"chapter"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func noteFromRecord(rec domain.Record) Note {
	var n Note
	n.ID, _ = rec["id"].(string)
	n.Chapter, _ = rec["chapter"].(string)
	n.Text, _ = rec["text"].(string)
	n.CreatedAt, _ = rec[domain.FieldCreatedAt].(string)
	n.UpdatedAt, _ = rec[domain.FieldUpdatedAt].(string)
	return n
}

// Notes manages notes in the document store. Every change is queued for
// synchronization.
type Notes struct {
	store *docstore.Store
	newID func() (string, error)
}

func NewNotes(store *docstore.Store) *Notes {
	return &Notes{store: store, newID: newNoteID}
}

func newNoteID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Add creates a note for chapter.
func (n *Notes) Add(ctx context.Context, chapter, text string) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, errors.New("note text is empty")
	}
	id, err := n.newID()
	if err != nil {
		return Note{}, fmt.Errorf("note id: %w", err)
	}
	if _, err := n.store.Add(ctx, docstore.TableNotes, domain.Record{
		"id":      id,
		"chapter": chapter,
		"text":    text,
	}); err != nil {
		return Note{}, err
	}
	if err := n.store.MarkForSync(ctx, docstore.TableNotes, id); err != nil {
		return Note{}, err
	}
	rec, err := n.store.Get(ctx, docstore.TableNotes, id)
	if err != nil {
		return Note{}, err
	}
	return noteFromRecord(rec), nil
}

// List returns the notes of chapter, or every note when chapter is empty,
// oldest first.
func (n *Notes) List(ctx context.Context, chapter string) ([]Note, error) {
	var (
		recs []domain.Record
		err  error
	)
	if chapter == "" {
		recs, err = n.store.GetAll(ctx, docstore.TableNotes, domain.ListOptions{})
	} else {
		recs, err = n.store.Query(ctx, docstore.TableNotes, "chapter", chapter)
	}
	if err != nil {
		return nil, err
	}
	notes := make([]Note, len(recs))
	for i, rec := range recs {
		notes[i] = noteFromRecord(rec)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt != notes[j].CreatedAt {
			return notes[i].CreatedAt < notes[j].CreatedAt
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// Remove deletes a note.
func (n *Notes) Remove(ctx context.Context, id string) error {
	if err := n.store.Delete(ctx, docstore.TableNotes, id); err != nil {
		return err
	}
	return n.store.MarkForSync(ctx, docstore.TableNotes, id)
}

// ExportMarkdown writes every note as one markdown document grouped by
// chapter.
func (n *Notes) ExportMarkdown(ctx context.Context, w io.Writer) error {
	notes, err := n.List(ctx, "")
	if err != nil {
		return err
	}

	byChapter := make(map[string][]Note)
	var chapters []string
	for _, note := range notes {
		if _, ok := byChapter[note.Chapter]; !ok {
			chapters = append(chapters, note.Chapter)
		}
		byChapter[note.Chapter] = append(byChapter[note.Chapter], note)
	}
	sort.Strings(chapters)

	var b strings.Builder
	b.WriteString("# Minhas notas\n")
	for _, ch := range chapters {
		title := ch
		if title == "" {
			title = "Geral"
		}
		fmt.Fprintf(&b, "\n## %s\n", title)
		for _, note := range byChapter[ch] {
			fmt.Fprintf(&b, "\n%s\n", note.Text)
		}
	}
	_, err = io.WriteString(w, b.String())
	return err
}
