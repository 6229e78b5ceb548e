package theme

import (
	"html/template"
	"time"
)

// SiteInfo is the site-wide part of PageData.
type SiteInfo struct {
	Title       string
	Description string
	Language    string
	BaseURL     string
	MathScript  string
	LiveReload  string
	BuildID     string
	Generated   time.Time
}

// Link is a titled URL.
type Link struct {
	Title  string
	URL    string
	Active bool
}

// PageSummary describes a page in listings.
type PageSummary struct {
	Title       string
	URL         string
	Description string
	Tags        []Link
	Modified    time.Time
}

// PageData is the value every layout is executed with.
type PageData struct {
	Site        SiteInfo
	Path        string
	URL         string
	Title       string
	Description string
	Content     template.HTML
	TOC         template.HTML
	HasMath     bool
	HasCode     bool
	Tags        []Link
	Nav         []Link
	Pages       []PageSummary
	Modified    time.Time
	Params      map[string]any
}
