package botdetect

import "strings"

// structuredDataMarker indicates real product content. Pages carrying JSON-LD
// are never classified as challenges, whatever the status code says.
const structuredDataMarker = `application/ld+json`

// MinContentBytes is the size under which a 403/503 body is treated as a
// block page even without a vendor marker.
const MinContentBytes = 5000

// challengeMarkers are literal substrings from anti-bot interstitial pages:
// challenge titles, verification widget ids, challenge-platform script paths,
// bot-management cookie names and generic verification phrases. Matched
// case-insensitively.
var challengeMarkers = []string{
	"just a moment...",
	"checking your browser before accessing",
	"checking if the site connection is secure",
	"attention required! | cloudflare",
	"cf-browser-verification",
	"cf-challenge",
	"cf-turnstile",
	"challenges.cloudflare.com",
	"/cdn-cgi/challenge-platform/",
	"cf_chl_opt",
	"__cf_chl",
	"cf_clearance",
	"ddos protection by",
	"verify you are human",
	"verifying you are human",
	"enable javascript and cookies to continue",
	"please enable cookies",
	"bot detected",
}

// IsChallengePage classifies an HTTP response as an anti-bot challenge.
//
// Order matters: structured data short-circuits to false so that real pages
// served with a 403, or pages that merely mention a challenge vendor's CDN,
// are never misclassified. The minimal-content rule catches block pages that
// carry no vendor marker at all.
func IsChallengePage(statusCode int, body string) bool {
	lower := strings.ToLower(body)

	if strings.Contains(lower, structuredDataMarker) {
		return false
	}

	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	if statusCode == 403 || statusCode == 503 {
		if len(body) < MinContentBytes || !strings.Contains(lower, "<body") {
			return true
		}
	}

	return false
}
