// Command lemmabuild writes a native model directory (meta.yaml and
// lexicon.db) from a tab-separated lexicon and an optional stop word list.
//
// Lexicon lines are: form, lemma, pos, tag, ent_type. Only form and lemma
// are required. Lines starting with '#' are skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xcro3dile/lemmaserve/internal/adapters/native"
)

type buildOptions struct {
	outDir        string
	name          string
	lang          string
	version       string
	components    []string
	lexiconPath   string
	stopWordsPath string
}

func main() {
	out := flag.String("out", "", "model directory to write (required)")
	name := flag.String("name", "", "model name (defaults to the directory name)")
	lang := flag.String("lang", "en", "language code")
	version := flag.String("version", "1.0.0", "model version")
	components := flag.String("components", "tagger,lemmatizer,ner", "comma-separated pipeline components")
	lexicon := flag.String("lexicon", "", "tab-separated lexicon file")
	stopWords := flag.String("stop-words", "", "stop word file, one word per line")
	flag.Parse()

	if *out == "" {
		log.Fatal("--out required")
	}

	n, err := build(context.Background(), buildOptions{
		outDir:        *out,
		name:          *name,
		lang:          *lang,
		version:       *version,
		components:    splitList(*components),
		lexiconPath:   *lexicon,
		stopWordsPath: *stopWords,
	})
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	fmt.Printf("wrote %s (%d lexemes)\n", *out, n)
}

// build writes the model and returns the number of lexicon entries stored.
func build(ctx context.Context, opts buildOptions) (int, error) {
	name := opts.name
	if name == "" {
		name = filepath.Base(filepath.Clean(opts.outDir))
	}
	meta := &native.Meta{
		Name:     name,
		Lang:     opts.lang,
		Version:  opts.version,
		Pipeline: opts.components,
	}

	if opts.stopWordsPath != "" {
		words, err := readStopWords(opts.stopWordsPath)
		if err != nil {
			return 0, fmt.Errorf("stop words: %w", err)
		}
		meta.StopWords = words
	}

	var entries []native.Lexeme
	if opts.lexiconPath != "" {
		f, err := os.Open(opts.lexiconPath)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		entries, err = parseLexicon(f)
		if err != nil {
			return 0, fmt.Errorf("lexicon %s: %w", opts.lexiconPath, err)
		}
	}

	if err := native.WriteMeta(opts.outDir, meta); err != nil {
		return 0, fmt.Errorf("writing meta: %w", err)
	}
	if len(entries) > 0 {
		if err := native.WriteLexicon(ctx, native.LexiconPath(opts.outDir), entries); err != nil {
			return 0, fmt.Errorf("writing lexicon: %w", err)
		}
	}
	return len(entries), nil
}

func parseLexicon(r io.Reader) ([]native.Lexeme, error) {
	var entries []native.Lexeme
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rec := strings.Split(text, "\t")
		if len(rec) < 2 || rec[0] == "" || rec[1] == "" {
			return nil, fmt.Errorf("line %d: form and lemma are required", line)
		}
		for len(rec) < 5 {
			rec = append(rec, "")
		}
		entries = append(entries, native.Lexeme{
			Form:    rec[0],
			Lemma:   rec[1],
			POS:     rec[2],
			Tag:     rec[3],
			EntType: rec[4],
		})
	}
	return entries, sc.Err()
}

func readStopWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		words = append(words, strings.ToLower(w))
	}
	return words, sc.Err()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
