package native

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Lexeme is one lexicon row. Form is the surface form as written.
type Lexeme struct {
	Form    string
	Lemma   string
	POS     string
	Tag     string
	EntType string
}

const lexiconSchema = `
CREATE TABLE IF NOT EXISTS lexemes (
	form TEXT PRIMARY KEY,
	lemma TEXT NOT NULL,
	pos TEXT NOT NULL DEFAULT '',
	tag TEXT NOT NULL DEFAULT '',
	ent_type TEXT NOT NULL DEFAULT ''
);`

// LexiconPath is where a model directory keeps its lexicon.
func LexiconPath(dir string) string {
	return filepath.Join(dir, lexiconFile)
}

// readLexicon loads the whole lexicon into memory.
func readLexicon(ctx context.Context, path string) (map[string]Lexeme, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT form, lemma, pos, tag, ent_type FROM lexemes`)
	if err != nil {
		return nil, fmt.Errorf("querying lexemes: %w", err)
	}
	defer rows.Close()

	lex := make(map[string]Lexeme)
	for rows.Next() {
		var l Lexeme
		if err := rows.Scan(&l.Form, &l.Lemma, &l.POS, &l.Tag, &l.EntType); err != nil {
			return nil, err
		}
		lex[l.Form] = l
	}
	return lex, rows.Err()
}

// WriteLexicon creates or extends the lexicon at path. Existing forms are replaced.
func WriteLexicon(ctx context.Context, path string, entries []Lexeme) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, lexiconSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO lexemes (form, lemma, pos, tag, ent_type) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Form, e.Lemma, e.POS, e.Tag, e.EntType); err != nil {
			return fmt.Errorf("inserting %q: %w", e.Form, err)
		}
	}
	return tx.Commit()
}
