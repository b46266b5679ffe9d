// Package entities contains core business entities.
// These are plain domain objects with no knowledge of HTTP, runtimes or storage.
package entities

import (
	"fmt"
	"strings"
)

const (
	DefaultLanguage = "unknown"
	DefaultKind     = "standard"
	UnknownVersion  = "unknown"
)

// PipelineDescriptor declares how to obtain and configure one named pipeline.
type PipelineDescriptor struct {
	Name     string
	Language string
	Kind     string
	Source   string   // named pipeline identifier or filesystem path
	Disable  []string // components skipped while processing

	DownloadURL string // package location tried when Source does not resolve
	HubRepo     string // content-hub repository, tried after DownloadURL
}

// NewPipelineDescriptor trims the name, rejects blank names and fills defaults.
// An empty disable list is replaced by defaultDisable.
func NewPipelineDescriptor(name, source string, disable, defaultDisable []string) (PipelineDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PipelineDescriptor{}, fmt.Errorf("%w: name is required", ErrDescriptorInvalid)
	}
	if strings.TrimSpace(source) == "" {
		return PipelineDescriptor{}, fmt.Errorf("%w: path is required for %q", ErrDescriptorInvalid, name)
	}
	if len(disable) == 0 {
		disable = append([]string(nil), defaultDisable...)
	}
	return PipelineDescriptor{
		Name:     name,
		Language: DefaultLanguage,
		Kind:     DefaultKind,
		Source:   source,
		Disable:  disable,
	}, nil
}

// Token is a single linguistic unit produced by a pipeline.
type Token struct {
	Text    string
	Lemma   string
	POS     string // coarse part-of-speech
	Tag     string // fine-grained tag
	Dep     string
	EntType string
	IsAlpha bool
	IsStop  bool
}

// Doc is the ordered token sequence for one input text.
type Doc []Token

// PipelineInfo joins descriptor and handle state for introspection.
type PipelineInfo struct {
	Name       string   `json:"name"`
	Language   string   `json:"language"`
	Kind       string   `json:"type"`
	Version    string   `json:"version"`
	Components []string `json:"components"`
}

// AnnotationRequest asks a named pipeline to annotate a batch of texts.
type AnnotationRequest struct {
	Pipeline string   `json:"model"`
	Texts    []string `json:"texts"`
	Fields   []string `json:"fields,omitempty"` // empty selects DefaultFields
}

// AnnotationResponse is the compact tabular result: one row per token,
// one column per field.
type AnnotationResponse struct {
	Fields        []string     `json:"annotations"`
	Documents     [][][]string `json:"tokens"`
	Pipeline      string       `json:"model"`
	ElapsedMillis float64      `json:"processing_time_ms"`
}
