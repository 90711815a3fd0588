package fetch

// Kind is the closed classification of extraction failures.
type Kind string

const (
	KindVideoUnavailable       Kind = "video_unavailable"
	KindVideoPrivate           Kind = "video_private"
	KindVideoRegionBlocked     Kind = "video_region_blocked"
	KindVideoAgeRestricted     Kind = "video_age_restricted"
	KindVideoLiveStream        Kind = "video_live_stream"
	KindDownloadFailed         Kind = "download_failed"
	KindRateLimited            Kind = "rate_limited"
	KindNetworkError           Kind = "network_error"
	KindTokenAcquisitionFailed Kind = "token_acquisition_failed"
	KindInternal               Kind = "internal"
)

// Retryable reports whether failures of this kind are worth another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindDownloadFailed, KindRateLimited, KindNetworkError, KindTokenAcquisitionFailed:
		return true
	default:
		return false
	}
}

// ParseKind converts a stored string back into a Kind. Unknown values map to
// KindInternal so old rows never break callers.
func ParseKind(value string) Kind {
	switch Kind(value) {
	case KindVideoUnavailable, KindVideoPrivate, KindVideoRegionBlocked,
		KindVideoAgeRestricted, KindVideoLiveStream, KindDownloadFailed,
		KindRateLimited, KindNetworkError, KindTokenAcquisitionFailed:
		return Kind(value)
	default:
		return KindInternal
	}
}
