package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/restockd/restockd/internal/models"
)

// Price is a scraped price: minor units at a two-decimal exponent plus the
// verbatim source string. The currency-specific exponent is applied later by
// the currency package.
type Price struct {
	Minor    int64
	Currency string
	Raw      string
}

// Result is one availability/price candidate pulled from page markup.
type Result struct {
	Status          models.AvailabilityStatus
	RawAvailability string
	Price           *Price
}

// Extractor pulls availability and price out of product page HTML. It targets
// Schema.org JSON-LD first and falls back to Next.js embedded page data.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses html and returns the first availability/price candidate, or
// (nil, nil) when the page carries no recognizable structured data. Missing
// or unparsable price data degrades to an absent price, never an error.
func (e *Extractor) Extract(html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	if result := e.fromJSONLD(doc); result != nil {
		return result, nil
	}

	if result := e.fromNextData(doc); result != nil {
		return result, nil
	}

	return nil, nil
}

// fromJSONLD scans every ld+json block for a Product or Offer object.
func (e *Extractor) fromJSONLD(doc *goquery.Document) *Result {
	var result *Result

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload interface{}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true // unparsable block, keep looking
		}

		if offer := findOffer(payload, 0); offer != nil {
			result = resultFromOffer(offer)
			return false
		}
		return true
	})

	return result
}

// findOffer descends into JSON-LD payloads (objects, arrays, @graph
// containers) looking for an offer-shaped object.
func findOffer(node interface{}, depth int) map[string]interface{} {
	if depth > 8 {
		return nil
	}

	switch v := node.(type) {
	case []interface{}:
		for _, item := range v {
			if offer := findOffer(item, depth+1); offer != nil {
				return offer
			}
		}
	case map[string]interface{}:
		if isType(v, "Offer") || isType(v, "AggregateOffer") {
			return v
		}
		if isType(v, "Product") {
			if offers, ok := v["offers"]; ok {
				if offer := offerFrom(offers); offer != nil {
					return offer
				}
			}
		}
		if graph, ok := v["@graph"]; ok {
			return findOffer(graph, depth+1)
		}
	}

	return nil
}

// offerFrom accepts the offers field of a Product, which may be a single
// object or an array.
func offerFrom(offers interface{}) map[string]interface{} {
	switch v := offers.(type) {
	case map[string]interface{}:
		return v
	case []interface{}:
		for _, item := range v {
			if offer, ok := item.(map[string]interface{}); ok {
				return offer
			}
		}
	}
	return nil
}

func isType(node map[string]interface{}, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func resultFromOffer(offer map[string]interface{}) *Result {
	raw, _ := offer["availability"].(string)

	result := &Result{
		Status:          MapAvailability(raw),
		RawAvailability: raw,
	}

	result.Price = priceFrom(offer["price"], offer["priceCurrency"])
	return result
}

// fromNextData descends into the Next.js page-props structure looking for a
// product-shaped object.
func (e *Extractor) fromNextData(doc *goquery.Document) *Result {
	text := doc.Find(`script#__NEXT_DATA__`).First().Text()
	if text == "" {
		return nil
	}

	var payload struct {
		Props struct {
			PageProps map[string]interface{} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil
	}
	if payload.Props.PageProps == nil {
		return nil
	}

	node := findProductNode(payload.Props.PageProps, 0)
	if node == nil {
		return nil
	}

	raw, _ := node["availability"].(string)
	result := &Result{
		Status:          MapAvailability(raw),
		RawAvailability: raw,
	}

	currency := firstString(node, "priceCurrency", "currencyCode", "currency")
	result.Price = priceFrom(node["price"], currency)
	return result
}

// findProductNode walks the page props for the first object carrying an
// availability field, or failing that a price/currency pair.
func findProductNode(node interface{}, depth int) map[string]interface{} {
	if depth > 10 {
		return nil
	}

	switch v := node.(type) {
	case map[string]interface{}:
		if _, ok := v["availability"]; ok {
			return v
		}
		if _, ok := v["price"]; ok {
			if firstString(v, "priceCurrency", "currencyCode", "currency") != "" {
				return v
			}
		}
		for _, child := range v {
			if found := findProductNode(child, depth+1); found != nil {
				return found
			}
		}
	case []interface{}:
		for _, child := range v {
			if found := findProductNode(child, depth+1); found != nil {
				return found
			}
		}
	}

	return nil
}

func firstString(node map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := node[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// MapAvailability maps a schema.org availability token to the four-way
// status. URIs are matched on their trailing token, case-insensitively.
// Unrecognized tokens map to unknown; the raw value stays on the Result.
func MapAvailability(raw string) models.AvailabilityStatus {
	token := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndexAny(token, "/#"); i >= 0 {
		token = token[i+1:]
	}

	switch token {
	case "instock", "limitedavailability", "onlineonly", "instoreonly":
		return models.StatusInStock
	case "outofstock", "soldout", "discontinued":
		return models.StatusOutOfStock
	case "backorder", "preorder":
		return models.StatusBackOrder
	default:
		return models.StatusUnknown
	}
}

// priceFrom builds a Price from the raw price and currency fields, tolerant
// of string or numeric prices. Anything unparsable yields nil.
func priceFrom(price interface{}, currency interface{}) *Price {
	code, _ := currency.(string)
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil
	}

	var raw string
	switch v := price.(type) {
	case string:
		raw = v
	case float64:
		raw = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil
	}

	minor, ok := ParsePriceMinor(raw)
	if !ok {
		return nil
	}

	return &Price{Minor: minor, Currency: code, Raw: raw}
}

// CleanPriceString strips a scraped price down to ASCII digits and a single
// decimal point. Thousands separators are discarded, so "1,234.56" and
// "1234.56" clean identically.
func CleanPriceString(raw string) string {
	var b strings.Builder
	seenPoint := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenPoint:
			b.WriteRune(r)
			seenPoint = true
		}
	}
	return b.String()
}

// ParsePriceMinor cleans and parses a price string into integer minor units
// at two decimal places.
func ParsePriceMinor(raw string) (int64, bool) {
	cleaned := CleanPriceString(raw)
	if cleaned == "" || cleaned == "." {
		return 0, false
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}

	return int64(math.Round(value * 100)), true
}
