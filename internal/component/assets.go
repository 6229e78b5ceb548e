package component

import (
	"html"
	"strings"
)

// InjectAssets adds a stylesheet link before </head> for every collected style and a
// script tag before </body> for every collected script. References already present in
// page are skipped, so injecting twice changes nothing. Without a </head> or </body>
// the tags are prepended or appended instead.
func InjectAssets(page string, rc *RenderContext) string {
	var styles, scripts strings.Builder
	for _, a := range rc.assets {
		u := html.EscapeString(assetURL(rc.baseURL, a.Path))
		switch a.Kind {
		case AssetStyle:
			tag := `<link rel="stylesheet" href="` + u + `">`
			if !strings.Contains(page, tag) {
				styles.WriteString(tag + "\n")
			}
		case AssetScript:
			tag := `<script src="` + u + `" defer></script>`
			if !strings.Contains(page, tag) {
				scripts.WriteString(tag + "\n")
			}
		}
	}
	if styles.Len() > 0 {
		page = insertBefore(page, "</head>", styles.String(), true)
	}
	if scripts.Len() > 0 {
		page = insertBefore(page, "</body>", scripts.String(), false)
	}
	return page
}

func insertBefore(page, marker, text string, prepend bool) string {
	i := strings.LastIndex(page, marker)
	if i < 0 {
		i = strings.LastIndex(page, strings.ToUpper(marker))
	}
	switch {
	case i >= 0:
		return page[:i] + text + page[i:]
	case prepend:
		return text + page
	default:
		return page + text
	}
}
