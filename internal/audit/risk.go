package audit

import (
	"net/http"
	"strings"
	"time"
)

// Risk classifies how dangerous the audited operation looked.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

var riskOrder = map[Risk]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// AtLeast reports whether r is at least as severe as other.
func (r Risk) AtLeast(other Risk) bool {
	return riskOrder[r] >= riskOrder[other]
}

// SlowRequestThreshold is the latency above which a request is considered
// high risk regardless of outcome.
const SlowRequestThreshold = 5 * time.Second

// privilegedPrefixes are paths whose mutations are always high risk.
var privilegedPrefixes = []string{"/admin", "/internal"}

// RiskFor computes the risk of an HTTP-shaped operation:
// server error outcome or excessive latency or a privileged-path mutation
// is high; a destructive method is medium; everything else is low.
func RiskFor(method, path string, status int, latency time.Duration) Risk {
	if status >= http.StatusInternalServerError {
		return RiskHigh
	}
	if latency > SlowRequestThreshold {
		return RiskHigh
	}
	if method != http.MethodGet && method != http.MethodHead && isPrivileged(path) {
		return RiskHigh
	}
	if method == http.MethodDelete {
		return RiskMedium
	}
	return RiskLow
}

func isPrivileged(path string) bool {
	for _, prefix := range privilegedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
