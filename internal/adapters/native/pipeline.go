package native

import (
	"context"
	"strings"
	"unicode"

	"github.com/0xcro3dile/lemmaserve/internal/domain/entities"
	"github.com/0xcro3dile/lemmaserve/internal/domain/ports"
)

// Component names understood by the native runtime.
const (
	ComponentTagger     = "tagger"
	ComponentLemmatizer = "lemmatizer"
	ComponentNER        = "ner"
)

// Pipeline annotates text from an in-memory lexicon. It is immutable after
// construction and safe for concurrent use.
type Pipeline struct {
	version    string
	components []string
	lexicon    map[string]Lexeme
	stopWords  map[string]struct{}

	tag, lemmatize, ner bool
}

var _ ports.Pipeline = (*Pipeline)(nil)

// NewPipeline builds a pipeline from meta, skipping disabled components.
func NewPipeline(meta *Meta, lexicon map[string]Lexeme, disable []string) *Pipeline {
	skip := make(map[string]bool, len(disable))
	for _, c := range disable {
		skip[c] = true
	}

	p := &Pipeline{
		version:    meta.Version,
		components: []string{},
		lexicon:    lexicon,
		stopWords:  make(map[string]struct{}, len(meta.StopWords)),
	}
	if p.version == "" {
		p.version = entities.UnknownVersion
	}
	for _, c := range meta.Pipeline {
		if skip[c] {
			continue
		}
		p.components = append(p.components, c)
		switch c {
		case ComponentTagger:
			p.tag = true
		case ComponentLemmatizer:
			p.lemmatize = true
		case ComponentNER:
			p.ner = true
		}
	}
	for _, w := range meta.StopWords {
		p.stopWords[strings.ToLower(w)] = struct{}{}
	}
	return p
}

// Pipe annotates each text independently.
func (p *Pipeline) Pipe(ctx context.Context, texts []string) ([]entities.Doc, error) {
	docs := make([]entities.Doc, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words := tokenize(text)
		doc := make(entities.Doc, len(words))
		for j, w := range words {
			doc[j] = p.annotate(w)
		}
		docs[i] = doc
	}
	return docs, nil
}

func (p *Pipeline) annotate(word string) entities.Token {
	lower := strings.ToLower(word)
	tok := entities.Token{
		Text:    word,
		IsAlpha: isAlpha(word),
	}
	_, tok.IsStop = p.stopWords[lower]

	lex, known := p.lexicon[word]
	if !known {
		lex, known = p.lexicon[lower]
	}

	if p.tag {
		if known && lex.POS != "" {
			tok.POS, tok.Tag = lex.POS, lex.Tag
		} else {
			tok.POS, tok.Tag = guessTag(word)
		}
	}
	if p.lemmatize {
		if known && lex.Lemma != "" {
			tok.Lemma = lex.Lemma
		} else {
			tok.Lemma = lower
		}
	}
	if p.ner && known {
		tok.EntType = lex.EntType
	}
	return tok
}

// Components returns the active components.
func (p *Pipeline) Components() []string {
	out := make([]string, len(p.components))
	copy(out, p.components)
	return out
}

// Version returns the model version from meta.yaml.
func (p *Pipeline) Version() string { return p.version }

// guessTag assigns a coarse tag to forms missing from the lexicon.
func guessTag(word string) (pos, tag string) {
	switch {
	case allRunes(word, unicode.IsDigit):
		return "NUM", "CD"
	case allRunes(word, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }):
		return "PUNCT", word
	default:
		return "X", "XX"
	}
}

func isAlpha(word string) bool {
	return word != "" && allRunes(word, unicode.IsLetter)
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}
