package llm

import "slices"

// Tier is a quality and cost bracket of generation models.
type Tier string

// Tiers.
const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierFallback Tier = "fallback"
)

// ModelConfig is the static capability metadata of a model.
type ModelConfig struct {
	Name            string
	Tier            Tier
	MaxOutputTokens int32
	Temperature     float32
	// Languages lists supported language codes. Empty means every language.
	Languages []string
}

// SupportsLanguage reports whether the model handles documents in lang.
func (m ModelConfig) SupportsLanguage(lang string) bool {
	return len(m.Languages) == 0 || slices.Contains(m.Languages, lang)
}

// Catalogue is the ordered model registry. The order of models is the
// selection order within a tier.
type Catalogue struct {
	models     []ModelConfig
	lastResort ModelConfig
}

var commonLanguages = []string{"en", "es", "fr", "de", "pt", "it"}

// NewCatalogue creates a catalogue from an ordered model list and a last resort model.
func NewCatalogue(models []ModelConfig, lastResort ModelConfig) *Catalogue {
	return &Catalogue{models: slices.Clone(models), lastResort: lastResort}
}

// DefaultCatalogue returns the Gemini tiers plus an optional OpenAI model in the
// standard tier. An empty openAIModel leaves it out.
func DefaultCatalogue(openAIModel string) *Catalogue {
	models := []ModelConfig{
		{Name: ModelGeminiPro, Tier: TierPremium, MaxOutputTokens: 8192, Temperature: 0.4, Languages: commonLanguages},
		{Name: ModelGeminiFlash, Tier: TierStandard, MaxOutputTokens: 8192, Temperature: 0.5, Languages: commonLanguages},
	}

	if openAIModel != "" {
		models = append(models, ModelConfig{
			Name: openAIModel, Tier: TierStandard, MaxOutputTokens: 4096, Temperature: 0.5, Languages: commonLanguages,
		})
	}

	models = append(models, ModelConfig{
		Name: ModelGeminiFlashLite, Tier: TierFallback, MaxOutputTokens: 4096, Temperature: 0.6, Languages: []string{"en", "es", "fr", "de", "pt"},
	})

	return NewCatalogue(models, ModelConfig{
		Name: ModelLastResort, Tier: TierFallback, MaxOutputTokens: 4096, Temperature: 0.6,
	})
}

// Models returns the catalogue in selection order.
func (c *Catalogue) Models() []ModelConfig {
	return slices.Clone(c.models)
}

// LastResort returns the model used when no candidate is live.
func (c *Catalogue) LastResort() ModelConfig {
	return c.lastResort
}

// Lookup finds a model by name, including the last resort model.
func (c *Catalogue) Lookup(name string) (ModelConfig, bool) {
	for _, m := range c.models {
		if m.Name == name {
			return m, true
		}
	}

	if c.lastResort.Name == name {
		return c.lastResort, true
	}

	return ModelConfig{}, false
}
