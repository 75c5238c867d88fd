package service

import "github.com/timmy/roastpage/internal/config"

// Optional credentials whose absence degrades the service.
const (
	EnvScreenshotKey = "APIFLASH_ACCESS_KEY"
	EnvAnalysisKey   = "OPENAI_API_KEY"
)

// Capabilities reports which optional external credentials are configured.
type Capabilities struct {
	screenshotKey bool
	analysisKey   bool
}

// NewCapabilities reads credential presence from cfg.
func NewCapabilities(cfg *config.Config) Capabilities {
	return Capabilities{
		screenshotKey: cfg.Screenshot.AccessKey != "",
		analysisKey:   cfg.Analysis.APIKey != "",
	}
}

// Check returns the names of missing optional variables.
func (c Capabilities) Check() []string {
	missing := []string{}
	if !c.screenshotKey {
		missing = append(missing, EnvScreenshotKey)
	}
	if !c.analysisKey {
		missing = append(missing, EnvAnalysisKey)
	}
	return missing
}

// LimitedFunctionality reports whether any optional variable is missing.
func (c Capabilities) LimitedFunctionality() bool {
	return !c.screenshotKey || !c.analysisKey
}
