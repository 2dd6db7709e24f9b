package topics

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"terport/internal/terport"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Release groups the topics first shipped with one plugin version.
type Release struct {
	Version string              `yaml:"version"`
	Topics  []terport.TopicSpec `yaml:"topics"`
}

type catalog struct {
	Releases []Release `yaml:"releases"`
}

// Registry yields the ordered topic list for a trigger. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	currentVersion string
	releases       []Release
}

// New loads the embedded catalog for the deployed currentVersion.
func New(currentVersion string) (*Registry, error) {
	return NewFromCatalog(defaultCatalog, currentVersion)
}

// NewFromCatalog parses a YAML release catalog.
func NewFromCatalog(data []byte, currentVersion string) (*Registry, error) {
	var parsed catalog
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse topic catalog: %w", err)
	}
	if err := validate(parsed.Releases); err != nil {
		return nil, err
	}
	return &Registry{
		currentVersion: strings.TrimSpace(currentVersion),
		releases:       parsed.Releases,
	}, nil
}

func validate(releases []Release) error {
	if len(releases) == 0 {
		return errors.New("topic catalog: no releases")
	}
	seenVersions := map[string]struct{}{}
	seenTitles := map[string]string{}
	for i, release := range releases {
		version := strings.TrimSpace(release.Version)
		if version == "" {
			return fmt.Errorf("topic catalog: release %d has no version", i)
		}
		if _, dup := seenVersions[version]; dup {
			return fmt.Errorf("topic catalog: duplicate release %q", version)
		}
		seenVersions[version] = struct{}{}
		if i > 0 && compareVersions(releases[i-1].Version, version) >= 0 {
			return fmt.Errorf("topic catalog: release %q is listed after %q", version, strings.TrimSpace(releases[i-1].Version))
		}
		for _, topic := range release.Topics {
			title := strings.TrimSpace(topic.Title)
			if title == "" {
				return fmt.Errorf("topic catalog: release %q has a topic without a title", version)
			}
			key := strings.ToLower(title)
			if prev, dup := seenTitles[key]; dup {
				return fmt.Errorf("topic catalog: topic %q appears in releases %q and %q", title, prev, version)
			}
			seenTitles[key] = version
		}
	}
	return nil
}

// CurrentVersion returns the deployed version the registry resolves updates for.
func (r *Registry) CurrentVersion() string {
	return r.currentVersion
}

// Topics returns the ordered topics for trigger. Initial and Manual runs get
// the full catalog. VersionUpdate runs get the topics of every release after
// the one lastVersion falls in, up to and including the one the current
// version falls in. An empty lastVersion means nothing was generated yet.
func (r *Registry) Topics(trigger terport.Trigger, lastVersion string) []terport.TopicSpec {
	switch trigger {
	case terport.TriggerInitial, terport.TriggerManual:
		var out []terport.TopicSpec
		for _, release := range r.releases {
			out = appendTopics(out, release.Topics)
		}
		return out
	case terport.TriggerVersionUpdate:
		upper := r.releaseIndex(r.currentVersion)
		lower := -1
		if last := strings.TrimSpace(lastVersion); last != "" {
			lower = r.releaseIndex(last)
		}
		var out []terport.TopicSpec
		for i := lower + 1; i <= upper; i++ {
			out = appendTopics(out, r.releases[i].Topics)
		}
		return out
	default:
		return nil
	}
}

// Releases returns a copy of the catalog for display.
func (r *Registry) Releases() []Release {
	out := make([]Release, len(r.releases))
	for i, release := range r.releases {
		out[i] = Release{Version: release.Version, Topics: appendTopics(nil, release.Topics)}
	}
	return out
}

// CategoryLabel turns a category slug such as "wellness-effect" into a
// display label ("Wellness Effect").
func (r *Registry) CategoryLabel(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	words := strings.FieldsFunc(category, func(c rune) bool {
		return c == '-' || c == '_' || c == ' '
	})
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// releaseIndex returns the position of the newest release at or below
// version, or -1 when version predates the catalog. A release "3.9" covers
// "3.9" and every "3.9.x".
func (r *Registry) releaseIndex(version string) int {
	version = strings.TrimSpace(version)
	if version == "" {
		return -1
	}
	idx := -1
	for i, release := range r.releases {
		if compareVersions(release.Version, version) > 0 {
			break
		}
		idx = i
	}
	return idx
}

func appendTopics(dst []terport.TopicSpec, src []terport.TopicSpec) []terport.TopicSpec {
	for _, topic := range src {
		questions := make([]string, 0, len(topic.ResearchQuestions))
		for _, q := range topic.ResearchQuestions {
			if q = strings.TrimSpace(q); q != "" {
				questions = append(questions, q)
			}
		}
		dst = append(dst, terport.TopicSpec{
			Title:             strings.TrimSpace(topic.Title),
			Category:          strings.TrimSpace(topic.Category),
			ResearchQuestions: questions,
		})
	}
	return dst
}
