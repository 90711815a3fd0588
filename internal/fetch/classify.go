package fetch

import "strings"

// codeKinds maps provider error codes to kinds. Kept as data so the mapping
// is testable without the provider.
var codeKinds = map[string]Kind{
	"VIDEO_UNAVAILABLE":    KindVideoUnavailable,
	"VIDEO_PRIVATE":        KindVideoPrivate,
	"VIDEO_REGION_BLOCKED": KindVideoRegionBlocked,
	"VIDEO_AGE_RESTRICTED": KindVideoAgeRestricted,
	"VIDEO_LIVE_STREAM":    KindVideoLiveStream,
	"DOWNLOAD_FAILED":      KindDownloadFailed,
	"RATE_LIMITED":         KindRateLimited,
	"NETWORK_ERROR":        KindNetworkError,
	"POT_TOKEN_FAILED":     KindTokenAcquisitionFailed,
}

// Classify turns a provider error code and message into a ClassifiedError.
// Unknown codes classify as KindInternal, which the retry policy treats as
// permanent.
func Classify(code, message string) *ClassifiedError {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	kind, ok := codeKinds[normalized]
	if !ok {
		kind = KindInternal
	}
	return &ClassifiedError{Kind: kind, Code: normalized, Message: message}
}

// classifyTransport wraps a transport-level failure (dial, timeout, broken
// connection) that never produced a provider error code.
func classifyTransport(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindNetworkError, Message: "fetch engine unreachable", Err: err}
}
