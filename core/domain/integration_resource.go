package domain

import "strings"

type ResourceType string

const (
	ResourceArticle       ResourceType = "article"
	ResourceVideo         ResourceType = "video"
	ResourceCourse        ResourceType = "course"
	ResourceBook          ResourceType = "book"
	ResourcePodcast       ResourceType = "podcast"
	ResourceTutorial      ResourceType = "tutorial"
	ResourceDocumentation ResourceType = "documentation"
	ResourceTool          ResourceType = "tool"
	ResourceOther         ResourceType = "other"
)

var resourceTypes = map[string]ResourceType{
	"article":       ResourceArticle,
	"video":         ResourceVideo,
	"course":        ResourceCourse,
	"book":          ResourceBook,
	"podcast":       ResourcePodcast,
	"tutorial":      ResourceTutorial,
	"documentation": ResourceDocumentation,
	"tool":          ResourceTool,
	"other":         ResourceOther,
}

type ResourceCategory string

const (
	CategoryProgramming         ResourceCategory = "programming"
	CategoryDesign              ResourceCategory = "design"
	CategoryBusiness            ResourceCategory = "business"
	CategoryMarketing           ResourceCategory = "marketing"
	CategoryScience             ResourceCategory = "science"
	CategoryLanguage            ResourceCategory = "language"
	CategoryHealth              ResourceCategory = "health"
	CategoryProductivity        ResourceCategory = "productivity"
	CategoryPersonalDevelopment ResourceCategory = "personal_development"
	CategoryOther               ResourceCategory = "other"
)

var resourceCategories = map[string]ResourceCategory{
	"programming":          CategoryProgramming,
	"design":               CategoryDesign,
	"business":             CategoryBusiness,
	"marketing":            CategoryMarketing,
	"science":              CategoryScience,
	"language":             CategoryLanguage,
	"health":               CategoryHealth,
	"productivity":         CategoryProductivity,
	"personal_development": CategoryPersonalDevelopment,
	"other":                CategoryOther,
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseResourceType maps free text onto the allowed set, falling back to other.
func ParseResourceType(s string) ResourceType {
	if t, ok := resourceTypes[normalizeEnum(s)]; ok {
		return t
	}
	return ResourceOther
}

// ParseResourceCategory maps free text onto the allowed set, falling back to other.
func ParseResourceCategory(s string) ResourceCategory {
	if c, ok := resourceCategories[normalizeEnum(s)]; ok {
		return c
	}
	return CategoryOther
}

const (
	SourceAISuggested = "AI_suggested"

	PlaceholderTitle       = "Untitled resource"
	PlaceholderDescription = "No description provided"
	PlaceholderURL         = "#"
)

// GeneratedResource is one learning resource suggested by the generator.
type GeneratedResource struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	URL         string           `json:"url"`
	Type        ResourceType     `json:"type"`
	Category    ResourceCategory `json:"category"`
	Source      string           `json:"source"`
}

// PlaceholderResource is used for records that could not be read at all.
func PlaceholderResource() GeneratedResource {
	return GeneratedResource{
		Title:       PlaceholderTitle,
		Description: PlaceholderDescription,
		URL:         PlaceholderURL,
		Type:        ResourceOther,
		Category:    CategoryOther,
		Source:      SourceAISuggested,
	}
}

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

type GenerationRequest struct {
	Topic      string `json:"topic"`
	TypeHint   string `json:"type_hint,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

const (
	MinGeneratedResources = 3
	MaxGeneratedResources = 5
)
