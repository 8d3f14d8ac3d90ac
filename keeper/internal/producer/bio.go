package producer

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/profkeeper/keeper/internal/record"
)

var (
	bioPolicy = bluemonday.UGCPolicy()
	bioStrip  = bluemonday.StrictPolicy()
	bioMD     = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
)

// BioText sanitises a biography fragment and converts it to Markdown so
// links and line breaks survive in a single cell.
func BioText(fragment, pageURL string) string {
	safe := bioPolicy.Sanitize(fragment)
	md, err := bioMD.ConvertString(safe, converter.WithDomain(pageURL))
	if err != nil {
		return record.Clean(html.UnescapeString(bioStrip.Sanitize(fragment)))
	}
	return record.Clean(strings.TrimSpace(md))
}

// extractBio runs the bio strategies. Element matches are rendered and
// converted; attribute, label and regexp strategies return plain text.
func extractBio(doc *html.Node, ranked []Strategy, pageURL string) string {
	for _, st := range ranked {
		if ns, ok := st.(nodeStrategy); ok && ns.attr == "" {
			nodes := ns.sel.selectAll(doc)
			if len(nodes) == 0 {
				continue
			}
			var parts []string
			for _, n := range nodes {
				parts = append(parts, render(n))
			}
			if v := BioText(strings.Join(parts, "\n"), pageURL); v != record.Blank {
				return v
			}
			continue
		}
		if v, ok := st.Extract(doc); ok {
			return v
		}
	}
	return ""
}
