package provider

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pedalworks/trainsync/internal/domain"
)

const maxResponseBytes = 1 << 20 // 1MB

// terminalSignatures are the error-body markers that mean the refresh token
// itself was rejected. Classification keys on these rather than bare HTTP
// status so a transient blip is never misread as a revocation, which would
// force an unnecessary reconnect.
var terminalSignatures = []string{
	"invalid_grant",
	"revoked",
	"deauthorized",
}

// classifyRefreshFailure decides whether a non-200 refresh response is a
// terminal rejection or a transient failure. Terminal wraps
// domain.ErrRequiresReconnect; everything else wraps
// domain.ErrTransientRefresh.
func classifyRefreshFailure(status int, body []byte) error {
	lower := strings.ToLower(string(body))
	for _, signature := range terminalSignatures {
		if strings.Contains(lower, signature) {
			return fmt.Errorf("%w: provider returned status %d: %s", domain.ErrRequiresReconnect, status, truncate(body, 200))
		}
	}

	if status == http.StatusUnauthorized {
		// 401 without a body signature still means the token was not accepted
		return fmt.Errorf("%w: provider returned status %d", domain.ErrRequiresReconnect, status)
	}

	// 5xx, 429, and unrecognized 4xx bodies stay transient
	return fmt.Errorf("%w: provider returned status %d: %s", domain.ErrTransientRefresh, status, truncate(body, 200))
}
