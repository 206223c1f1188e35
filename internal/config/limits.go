package config

const (
	// MaxSessionNameLength is the maximum length for session names.
	// Limited to 255 to fit in PostgreSQL VARCHAR(255).
	MaxSessionNameLength = 255

	// DefaultSessionName is used when a session is created without a name
	DefaultSessionName = "New Analysis"

	// MaxTemplateTitleLength is the maximum length for template titles.
	MaxTemplateTitleLength = 120

	// MaxTemplateCategoryLength is the maximum length for template categories.
	MaxTemplateCategoryLength = 60

	// MaxTemplatePromptLength bounds the prompt body. Prompts are prepended to
	// every analysis request that uses the template, so they stay short.
	MaxTemplatePromptLength = 8000

	// MaxContextualFields is the maximum number of extra inputs a template may ask for
	MaxContextualFields = 20

	// MaxUploadBytes is the largest file accepted by the ingestion pipeline
	MaxUploadBytes = 50 << 20

	// MaxImageBytes is the largest image accepted by the image processor
	MaxImageBytes = 20 << 20

	// MaxImageDimension is the largest width or height accepted, in pixels
	MaxImageDimension = 8000

	// MaxDraftLength bounds the composer text
	MaxDraftLength = 20000
)
