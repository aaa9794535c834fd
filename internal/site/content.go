package site

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alshekh/portfolio/web"
)

// DefaultContentFile is the embedded profile document.
const DefaultContentFile = "content/site.yaml"

// Profile is the owner-facing content rendered on the landing page.
type Profile struct {
	Name       string       `yaml:"name"`
	Title      string       `yaml:"title"`
	Headline   string       `yaml:"headline"`
	Summary    string       `yaml:"summary"`
	Stack      Stack        `yaml:"stack"`
	About      About        `yaml:"about"`
	Socials    []SocialLink `yaml:"socials"`
	Newsletter Newsletter   `yaml:"newsletter"`
}

// Stack lists the preferred toolkit.
type Stack struct {
	Intro string      `yaml:"intro"`
	Items []StackItem `yaml:"items"`
}

// StackItem is a single technology badge.
type StackItem struct {
	Name        string `yaml:"name"`
	Accent      string `yaml:"accent"`
	Description string `yaml:"description"`
}

// About is the biography section.
type About struct {
	Heading    string   `yaml:"heading"`
	Paragraphs []string `yaml:"paragraphs"`
	Expertise  []string `yaml:"expertise"`
	Closing    string   `yaml:"closing"`
}

// SocialLink points at an external profile.
type SocialLink struct {
	Label string `yaml:"label"`
	Href  string `yaml:"href"`
}

// Newsletter holds copy for the signup block.
type Newsletter struct {
	Heading string `yaml:"heading"`
	Blurb   string `yaml:"blurb"`
}

// StackLine joins the stack item names for the hero chip.
func (p *Profile) StackLine() string {
	names := make([]string, 0, len(p.Stack.Items))
	for _, item := range p.Stack.Items {
		names = append(names, item.Name)
	}
	return strings.Join(names, " · ")
}

// LoadProfile reads the profile from path, or from the embedded default when
// path is empty.
func LoadProfile(path string) (*Profile, error) {
	var (
		raw []byte
		err error
	)
	if path == "" {
		raw, err = fs.ReadFile(web.Content, DefaultContentFile)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read site content: %w", err)
	}
	return ParseProfile(raw)
}

// ParseProfile decodes a YAML profile document.
func ParseProfile(raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode site content: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("site content: name is required")
	}
	if len(p.Socials) == 0 {
		return errors.New("site content: at least one social link is required")
	}
	for i, link := range p.Socials {
		if link.Label == "" || link.Href == "" {
			return fmt.Errorf("site content: social link %d needs label and href", i)
		}
	}
	return nil
}
