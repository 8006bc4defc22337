package imagegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultAspectRatio is used when a request does not name one.
const DefaultAspectRatio = "1:1"

// SupportedAspectRatios are the ratios accepted from clients.
var SupportedAspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseAspectRatio parses "W:H" into width/height.
func ParseAspectRatio(ratio string) (float64, error) {
	w, h, ok := strings.Cut(ratio, ":")
	if !ok {
		return 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	wn, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || wn <= 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	hn, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || hn <= 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	return float64(wn) / float64(hn), nil
}

func IsSupportedAspectRatio(ratio string) bool {
	for _, r := range SupportedAspectRatios {
		if r == ratio {
			return true
		}
	}
	return false
}

// NearestSize picks the bucket whose shape is closest to ratio, compared on a
// log scale so 2:1 and 1:2 are equally far from 1:1.
func NearestSize(ratio string, buckets []Size) Size {
	target, err := ParseAspectRatio(ratio)
	if err != nil || len(buckets) == 0 {
		if len(buckets) == 0 {
			return Size{}
		}
		return buckets[0]
	}

	best := buckets[0]
	bestDist := math.Inf(1)
	for _, b := range buckets {
		dist := math.Abs(math.Log(target) - math.Log(float64(b.Width)/float64(b.Height)))
		if dist < bestDist {
			best = b
			bestDist = dist
		}
	}
	return best
}

// NearestRatio picks the candidate ratio closest to ratio.
func NearestRatio(ratio string, candidates []string) string {
	target, err := ParseAspectRatio(ratio)
	if err != nil || len(candidates) == 0 {
		return DefaultAspectRatio
	}

	best := candidates[0]
	bestDist := math.Inf(1)
	for _, c := range candidates {
		r, err := ParseAspectRatio(c)
		if err != nil {
			continue
		}
		dist := math.Abs(math.Log(target) - math.Log(r))
		if dist < bestDist {
			best = c
			bestDist = dist
		}
	}
	return best
}
