package server

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mssola/useragent"

	"github.com/formpulse/formpulse/internal/domain"
)

// extractClientMeta captures the client fingerprint stored immutably on the
// session: real IP plus user-agent derived device hints.
func extractClientMeta(c echo.Context) domain.ClientMeta {
	rawUA := c.Request().UserAgent()
	parsed := useragent.New(rawUA)

	browser, browserVersion := parsed.Browser()
	if browserVersion != "" {
		browser = browser + " " + browserVersion
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os = os + " " + osInfo.Version
	}

	deviceType := "desktop"
	switch {
	case parsed.Bot():
		deviceType = "bot"
	case isTablet(rawUA):
		deviceType = "tablet"
	case parsed.Mobile():
		deviceType = "mobile"
	}

	return domain.ClientMeta{
		IP:         c.RealIP(),
		UserAgent:  rawUA,
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType,
	}
}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}
