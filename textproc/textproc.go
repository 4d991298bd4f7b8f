// Package textproc cleans extracted resume text before it is stored or sent
// to a language model.
package textproc

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when a Preprocessor is created from blank input.
var ErrEmptyText = errors.New("input text cannot be empty or whitespace only")

var (
	whitespaceRe = regexp.MustCompile(`[\s\p{Z}]+`)
	bulletRe     = regexp.MustCompile(`[•▪●◦∙‣⁃]`)

	boilerplateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*curriculum vitae\.?\s*$`),
		regexp.MustCompile(`(?i)^\s*resume\.?\s*$`),
		regexp.MustCompile(`(?i)^\s*curriculum vitae -?$`),
		regexp.MustCompile(`(?i)^\s*page\s*\d+(\s*of\s*\d+)?\s*$`),
		regexp.MustCompile(`(?i)^\s*\d+\s*$`),
	}

	emailRe = regexp.MustCompile(`\S+@\S+`)

	linkedinRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?linkedin\.com[^\s,;]*`),
		regexp.MustCompile(`(?i)\blinkedin\s*[:\-]\s*\S+`),
	}

	githubRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?github\.com[^\s,;]*`),
		regexp.MustCompile(`(?i)\bgithub\s*[:\-]\s*\S+`),
	}

	phoneRes = []*regexp.Regexp{
		// +61 / 0061 with an optional (0) and loose separators.
		regexp.MustCompile(`(?:(?:\+|00)61)[\s\-\.\(]*(?:0\)?[\s\-\.\)]*)?(?:\d{1,4}[\s\-\.\)]?\d{3}[\s\-\.\)]?\d{3,4})`),
		// Australian mobiles: 0412 345 678, 0412345678.
		regexp.MustCompile(`\b04[\s\-\.\)]*\d{2}[\s\-\.\)]*\d{3}[\s\-\.\)]*\d{3}\b`),
	}
)

// Redaction placeholders.
const (
	RedactedEmail    = "[REDACTED_EMAIL]"
	RedactedLinkedIn = "[REDACTED_LINKEDIN]"
	RedactedGitHub   = "[REDACTED_GITHUB]"
	RedactedPhone    = "[REDACTED_PHONE]"
)

// Preprocessor applies cleaning steps to a text in place. Steps return the
// receiver so they can be chained:
//
//	p, err := textproc.New(raw)
//	if err != nil {
//	    return err
//	}
//	clean := p.RemoveExtraWhitespace().NormalizeUnicode().RemoveBoilerplates().RedactPII().Text()
type Preprocessor struct {
	text string
}

// New returns a Preprocessor for text, or ErrEmptyText if text is blank.
func New(text string) (*Preprocessor, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return &Preprocessor{text: text}, nil
}

// RemoveExtraWhitespace collapses whitespace runs to one space and trims.
func (p *Preprocessor) RemoveExtraWhitespace() *Preprocessor {
	p.text = strings.TrimSpace(whitespaceRe.ReplaceAllString(p.text, " "))
	return p
}

// NormalizeUnicode lowercases, maps bullet glyphs to "-" and applies NFKC.
func (p *Preprocessor) NormalizeUnicode() *Preprocessor {
	t := strings.ToLower(p.text)
	t = bulletRe.ReplaceAllString(t, "-")
	p.text = norm.NFKC.String(t)
	return p
}

// RemoveBoilerplates blanks the text when it consists only of a resume
// heading, a page marker or a bare number.
func (p *Preprocessor) RemoveBoilerplates() *Preprocessor {
	for _, re := range boilerplateRes {
		p.text = re.ReplaceAllString(p.text, "")
	}
	return p
}

// RedactPII replaces e-mail addresses, LinkedIn and GitHub references and
// Australian phone numbers with placeholders.
func (p *Preprocessor) RedactPII() *Preprocessor {
	t := emailRe.ReplaceAllString(p.text, RedactedEmail)
	for _, re := range linkedinRes {
		t = re.ReplaceAllString(t, RedactedLinkedIn)
	}
	for _, re := range githubRes {
		t = re.ReplaceAllString(t, RedactedGitHub)
	}
	for _, re := range phoneRes {
		t = re.ReplaceAllString(t, RedactedPhone)
	}
	p.text = t
	return p
}

// Text returns the current text.
func (p *Preprocessor) Text() string {
	return p.text
}

// Clean runs the full chain used on uploaded resumes.
func Clean(text string) (string, error) {
	p, err := New(text)
	if err != nil {
		return "", err
	}
	return p.RemoveExtraWhitespace().
		NormalizeUnicode().
		RemoveBoilerplates().
		RedactPII().
		Text(), nil
}
