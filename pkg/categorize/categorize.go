// Package categorize assigns spending categories from merchant keywords.
//
// Categories use Plaid's personal finance primary names so that locally
// categorized rows aggregate alongside Plaid-categorized ones.
package categorize

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const Other = "OTHER"

//go:embed default_rules.yaml
var defaultRules []byte

// Rules is the YAML document shape.
type Rules struct {
	Categories    map[string][]string `yaml:"categories"`
	Subscriptions []string            `yaml:"subscriptions"`
	Transfers     []string            `yaml:"transfers"`
}

type rule struct {
	category string
	keyword  string
}

type Categorizer struct {
	rules         []rule
	subscriptions []string
}

// Default returns a categorizer built from the embedded rule set.
func Default() *Categorizer {
	c, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded category rules: %v", err))
	}
	return c
}

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (*Categorizer, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Categorizer, error) {
	var doc Rules
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse category rules: %w", err)
	}

	c := &Categorizer{}
	for category, keywords := range doc.Categories {
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				c.rules = append(c.rules, rule{category: strings.ToUpper(category), keyword: kw})
			}
		}
	}
	for _, kw := range doc.Transfers {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			c.rules = append(c.rules, rule{category: "TRANSFER_OUT", keyword: kw})
		}
	}
	for _, kw := range doc.Subscriptions {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			c.subscriptions = append(c.subscriptions, kw)
		}
	}
	// Longest keyword wins so "uber eats" beats "uber".
	sort.SliceStable(c.rules, func(i, j int) bool {
		if len(c.rules[i].keyword) != len(c.rules[j].keyword) {
			return len(c.rules[i].keyword) > len(c.rules[j].keyword)
		}
		return c.rules[i].category < c.rules[j].category
	})
	return c, nil
}

// Categorize returns the category for a transaction name/merchant pair.
func (c *Categorizer) Categorize(name, merchant string) string {
	haystack := strings.ToLower(merchant + " " + name)
	for _, r := range c.rules {
		if strings.Contains(haystack, r.keyword) {
			return r.category
		}
	}
	return Other
}

// IsSubscription reports whether the text matches a known subscription keyword.
func (c *Categorizer) IsSubscription(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.subscriptions {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var (
	storeNumber = regexp.MustCompile(`(#|no\.?\s*)\s*\d+`)
	nonLetters  = regexp.MustCompile(`[^a-z ]+`)
	multiSpace  = regexp.MustCompile(`\s+`)
	noiseSuffix = regexp.MustCompile(`\b(inc|llc|ltd|co|corp|com|www|pos|debit|purchase|ach|payment)\b`)
)

// NormalizeMerchant lowercases and strips digits, punctuation, store numbers
// and processor noise so repeated charges from one merchant group together.
func NormalizeMerchant(s string) string {
	s = strings.ToLower(s)
	s = storeNumber.ReplaceAllString(s, " ")
	s = nonLetters.ReplaceAllString(s, " ")
	s = noiseSuffix.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// IsTransfer reports whether a category is money moving between own accounts.
func IsTransfer(category string) bool {
	return strings.HasPrefix(strings.ToUpper(category), "TRANSFER")
}
