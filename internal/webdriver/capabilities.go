package webdriver

// ChromeOptions is the goog:chromeOptions capability.
type ChromeOptions struct {
	Args []string `json:"args,omitempty"`
}

// Capabilities is the browser profile requested for every session.
type Capabilities struct {
	BrowserName   string         `json:"browserName"`
	ChromeOptions *ChromeOptions `json:"goog:chromeOptions,omitempty"`
}

// DefaultCapabilities returns the fixed profile: Chrome, no OS sandbox, headless.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		BrowserName: "chrome",
		ChromeOptions: &ChromeOptions{
			Args: []string{"--no-sandbox", "--headless"},
		},
	}
}

// newSessionRequest carries the profile both as W3C alwaysMatch and as
// legacy desiredCapabilities so older drivers accept it too.
type newSessionRequest struct {
	Capabilities        capabilitiesRequest `json:"capabilities"`
	DesiredCapabilities Capabilities        `json:"desiredCapabilities"`
}

type capabilitiesRequest struct {
	AlwaysMatch Capabilities `json:"alwaysMatch"`
}

func newSessionPayload(caps Capabilities) newSessionRequest {
	return newSessionRequest{
		Capabilities:        capabilitiesRequest{AlwaysMatch: caps},
		DesiredCapabilities: caps,
	}
}
