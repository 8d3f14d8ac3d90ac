package producer

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
)

// Rules is the ranked strategy list per output column plus the special
// signals.
type Rules struct {
	Fields map[string][]Strategy
	// Label reads the lifecycle label shown on the page.
	Label []Strategy
	// Bio selects the biography; element matches are converted from HTML.
	Bio []Strategy
	// NotFound lists lower-case phrases whose presence in the page text
	// means the profile does not exist.
	NotFound []string
}

// DefaultRules covers the common layouts of the profile pages: labelled
// definition lists, microdata and Open Graph tags.
func DefaultRules() Rules {
	return Rules{
		Fields: map[string][]Strategy{
			record.ColID: MustStrategies(
				"css:[data-profile-id]::attr(data-profile-id)",
				"css:[data-user-id]::attr(data-user-id)",
				"label:ID",
				`re:(?i)profile\s*id\s*[:#]?\s*(\d+)`,
			),
			record.ColName: MustStrategies(
				"css:.profile-name",
				"css:[itemprop=name]",
				"css:meta[property=og:title]::attr(content)",
				"css:h1",
			),
			record.ColCity:    MustStrategies("label:City", "css:[itemprop=addressLocality]"),
			record.ColCountry: MustStrategies("label:Country", "css:[itemprop=addressCountry]"),
			record.ColGender:  MustStrategies("label:Gender"),
			record.ColAge:     MustStrategies("label:Age"),
			record.ColMarried: MustStrategies("label:Marital Status", "label:Married"),
			record.ColJoined:  MustStrategies("label:Joined", "label:Member since"),
			record.ColFollowers: MustStrategies(
				"css:.followers .count",
				`re:(?i)([\d.,]+\s*[kmb]?)\s+followers`,
			),
			record.ColFollowing: MustStrategies(
				"css:.following .count",
				`re:(?i)([\d.,]+\s*[kmb]?)\s+following`,
			),
			record.ColPosts: MustStrategies(
				"css:.posts .count",
				`re:(?i)([\d.,]+\s*[kmb]?)\s+posts`,
			),
			record.ColInterests: MustStrategies("css:.interests li", "label:Interests"),
			record.ColLastPost: MustStrategies(
				"css:.post time::attr(datetime)",
				"css:.post time",
				"label:Last post",
			),
		},
		Label: MustStrategies("css:.badge", "css:.profile-status", "label:Status"),
		Bio:   MustStrategies("css:.bio", "css:[itemprop=description]", "label:About"),
		NotFound: []string{
			"user does not exist",
			"profile not found",
			"page not found",
			"this account has been deleted",
		},
	}
}

// RulesConfig is the YAML form of rule overrides.
type RulesConfig struct {
	Fields   map[string][]string `yaml:"fields"`
	Label    []string            `yaml:"label"`
	Bio      []string            `yaml:"bio"`
	NotFound []string            `yaml:"not_found"`
}

// Apply overrides the defaults in r with cfg. A column listed in cfg
// replaces its whole strategy list.
func (r Rules) Apply(cfg RulesConfig) (Rules, error) {
	out := Rules{
		Fields:   make(map[string][]Strategy, len(r.Fields)),
		Label:    r.Label,
		Bio:      r.Bio,
		NotFound: r.NotFound,
	}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	parse := func(specs []string) ([]Strategy, error) {
		sts := make([]Strategy, 0, len(specs))
		for _, s := range specs {
			st, err := ParseStrategy(s)
			if err != nil {
				return nil, err
			}
			sts = append(sts, st)
		}
		return sts, nil
	}
	for col, specs := range cfg.Fields {
		sts, err := parse(specs)
		if err != nil {
			return Rules{}, fmt.Errorf("producer: field %s: %w", col, err)
		}
		out.Fields[col] = sts
	}
	if len(cfg.Label) > 0 {
		sts, err := parse(cfg.Label)
		if err != nil {
			return Rules{}, err
		}
		out.Label = sts
	}
	if len(cfg.Bio) > 0 {
		sts, err := parse(cfg.Bio)
		if err != nil {
			return Rules{}, err
		}
		out.Bio = sts
	}
	if len(cfg.NotFound) > 0 {
		out.NotFound = make([]string, len(cfg.NotFound))
		for i, p := range cfg.NotFound {
			out.NotFound[i] = strings.ToLower(p)
		}
	}
	return out, nil
}
