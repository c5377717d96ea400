package engine

// DefaultMaxSteps bounds how many times the model is called per request.
const DefaultMaxSteps = 5

// DefaultSystemPrompt is sent ahead of every conversation.
const DefaultSystemPrompt = `You are an expert Python developer and data analyst.
You can execute Python code using the execute_python tool.
When users ask you to analyze data, solve problems, or create visualizations:
1. Write clear, well-commented Python code
2. Execute it using the tool
3. Explain the results

Available libraries: pandas, numpy, matplotlib, seaborn, scipy, sklearn.`

// Config holds configuration for the engine.
type Config struct {
	// Model is passed to the provider. Empty lets the provider choose.
	Model string

	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string

	// MaxSteps is the number of model turns per request. Zero or negative
	// means DefaultMaxSteps.
	MaxSteps int

	MaxTokens   *int
	Temperature *float64
}

func (c Config) maxSteps() int {
	if c.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return c.SystemPrompt
}

// modelLabel is the metric label for the configured model.
func (c Config) modelLabel() string {
	if c.Model == "" {
		return "default"
	}
	return c.Model
}
