// internal/api/gate.go
package api

import (
	"github.com/askbase-go/internal/models"
)

// StripUnlicensedFields nulls out every customizable model-configuration
// field so that handler defaults apply instead. It runs before prompt
// assembly for any request that is not dashboard-originated and whose team
// tier does not entitle custom model configuration.
func StripUnlicensedFields(req *models.CompletionRequest) {
	req.Temperature = nil
	req.TopP = nil
	req.FrequencyPenalty = nil
	req.PresencePenalty = nil
	req.MaxTokens = nil
	req.SectionsMatchCount = nil
	req.SectionsMatchThreshold = nil
	req.SystemPrompt = nil
	req.PromptTemplate = nil
}
