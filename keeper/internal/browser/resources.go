package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests for the configured resource kinds. The
// caller stops the returned router when the page is done.
func blockResources(page *rod.Page, kinds []string) *rod.HijackRouter {
	block := blockSet(kinds)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// blockSet maps config names to CDP resource types. Unknown names are
// ignored.
func blockSet(kinds []string) map[proto.NetworkResourceType]bool {
	out := make(map[proto.NetworkResourceType]bool, len(kinds))
	for _, k := range kinds {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "images", "image":
			out[proto.NetworkResourceTypeImage] = true
		case "fonts", "font":
			out[proto.NetworkResourceTypeFont] = true
		case "media":
			out[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet", "css":
			out[proto.NetworkResourceTypeStylesheet] = true
		}
	}
	return out
}
