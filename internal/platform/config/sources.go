package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sources lists the acquisition inputs: subscribed feeds per language, curated
// publisher domains and the topic categories used for cold-start exploration.
type Sources struct {
	Feeds          map[string][]string `yaml:"feeds"`
	CuratedDomains []string            `yaml:"curated_domains"`
	Categories     []string            `yaml:"categories"`
	Languages      []string            `yaml:"languages"`
}

// DefaultSources returns the built-in source lists.
func DefaultSources() Sources {
	return Sources{
		Feeds: map[string][]string{
			"en": {
				"https://feeds.bbci.co.uk/news/world/rss.xml",
				"https://www.theguardian.com/world/rss",
				"https://feeds.npr.org/1001/rss.xml",
				"https://www.aljazeera.com/xml/rss/all.xml",
			},
			"es": {
				"https://feeds.elpais.com/mrss-s/pages/ep/site/elpais.com/portada",
				"https://www.bbc.com/mundo/index.xml",
			},
			"fr": {
				"https://www.lemonde.fr/rss/une.xml",
				"https://www.france24.com/fr/rss",
			},
			"de": {
				"https://www.tagesschau.de/xml/rss2",
				"https://rss.dw.com/xml/rss-de-all",
			},
		},
		CuratedDomains: []string{
			"reuters.com",
			"apnews.com",
			"bbc.co.uk",
			"theguardian.com",
			"npr.org",
			"nature.com",
			"scientificamerican.com",
			"economist.com",
		},
		Categories: []string{
			"general",
			"world",
			"business",
			"technology",
			"science",
			"health",
			"sports",
			"entertainment",
		},
		Languages: []string{"en", "es", "fr", "de"},
	}
}

// LoadSources reads source lists from a YAML file. Sections missing from the file
// keep their built-in defaults. An empty path returns the defaults.
func LoadSources(path string) (Sources, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Sources{}, fmt.Errorf("read sources file: %w", err)
	}

	var override Sources
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Sources{}, fmt.Errorf("parse sources file: %w", err)
	}

	if len(override.Feeds) > 0 {
		sources.Feeds = override.Feeds
	}

	if len(override.CuratedDomains) > 0 {
		sources.CuratedDomains = override.CuratedDomains
	}

	if len(override.Categories) > 0 {
		sources.Categories = override.Categories
	}

	if len(override.Languages) > 0 {
		sources.Languages = override.Languages
	}

	return sources, nil
}

// FeedLanguages returns the languages that have feeds, in a stable order.
func (s Sources) FeedLanguages() []string {
	langs := make([]string, 0, len(s.Feeds))
	for lang := range s.Feeds {
		langs = append(langs, lang)
	}

	sort.Strings(langs)

	return langs
}
