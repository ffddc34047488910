// Package draftfile reads an entry draft from a Markdown document with YAML
// frontmatter:
//
//	---
//	title: My New Tale
//	subtitle: One line
//	thumbnail: https://example.com/cover.png
//	foreword: A short introduction.
//	---
//	Para one
//
//	Para two
package draftfile

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/echoes/internal/models"
)

type frontmatter struct {
	Title     string `yaml:"title"`
	Subtitle  string `yaml:"subtitle"`
	Foreword  string `yaml:"foreword"`
	Thumbnail string `yaml:"thumbnail"`
}

// Parse converts a document into a draft. Without a frontmatter title the
// first H1 heading is used and removed from the body. Invalid YAML is an
// error, unlike a missing frontmatter block.
func Parse(data []byte) (models.Draft, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return models.Draft{}, err
	}

	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title, body = takeHeading(body)
	}

	return models.Draft{
		Title:        title,
		Subtitle:     strings.TrimSpace(fm.Subtitle),
		Foreword:     strings.TrimSpace(fm.Foreword),
		ThumbnailURL: strings.TrimSpace(fm.Thumbnail),
		Body:         strings.Trim(body, "\n"),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (frontmatter, string, error) {
	const delim = "---"
	var fm frontmatter
	trimmed := bytes.TrimLeft(data, "\n")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fm, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fm, string(data), nil
	}

	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return fm, "", fmt.Errorf("draftfile: frontmatter: %w", err)
	}
	body := string(rest[idx+1+len(delim):])
	return fm, strings.TrimLeft(body, "\n"), nil
}

// takeHeading returns the first H1 heading and the body without it.
func takeHeading(body string) (string, string) {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			rest := append(lines[:i:i], lines[i+1:]...)
			return strings.TrimSpace(trimmed[2:]), strings.Join(rest, "\n")
		}
	}
	return "", body
}
