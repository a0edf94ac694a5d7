package enums

import "strings"

type Segment string

const (
	SegmentAll      Segment = "all"
	SegmentPremium  Segment = "premium"
	SegmentFree     Segment = "free"
	SegmentInactive Segment = "inactive"
	SegmentZodiac   Segment = "zodiac"
)

// ParseSegment maps a raw value to a known segment. An empty value means all users.
func ParseSegment(raw string) (Segment, bool) {
	switch Segment(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SegmentAll:
		return SegmentAll, true
	case SegmentPremium:
		return SegmentPremium, true
	case SegmentFree:
		return SegmentFree, true
	case SegmentInactive:
		return SegmentInactive, true
	case SegmentZodiac:
		return SegmentZodiac, true
	default:
		return "", false
	}
}
