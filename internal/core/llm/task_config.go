package llm

// TaskType labels a call for metrics, logs and model overrides.
type TaskType string

const (
	TaskTheme     TaskType = "theme"
	TaskFilter    TaskType = "filter"
	TaskAnalysis  TaskType = "analysis"
	TaskChunk     TaskType = "chunk"
	TaskSynthesis TaskType = "synthesis"
)

// ProviderModel specifies a provider and model combination.
type ProviderModel struct {
	Provider ProviderName
	Model    string
}

// ProviderChain is the ordered fallback chain built from configuration.
type ProviderChain struct {
	Default   ProviderModel
	Fallbacks []ProviderModel
}

// GetProviderChain returns Default followed by Fallbacks, skipping empty entries.
func (c ProviderChain) GetProviderChain() []ProviderModel {
	chain := make([]ProviderModel, 0, len(c.Fallbacks)+1)

	if c.Default.Provider != "" {
		chain = append(chain, c.Default)
	}

	for _, pm := range c.Fallbacks {
		if pm.Provider != "" {
			chain = append(chain, pm)
		}
	}

	return chain
}
