// Package urlbuilder joins the configured site base path with site-relative paths.
//
// Every link or asset reference emitted by the compiler, the component renderer and the
// page layouts goes through Build exactly once.
package urlbuilder

import (
	"path"
	"strings"
)

// Build combines baseURL and path with exactly one separating slash.
//
//	Build("", "a/b.html")          == "/a/b.html"
//	Build("/site", "a/b.html")     == "/site/a/b.html"
//	Build("/site/", "/a/b.html")   == "/site/a/b.html"
//	Build("https://x.org/", "")    == "https://x.org/"
func Build(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	rel := strings.TrimLeft(path, "/")
	return base + "/" + rel
}

// PageURL maps a content-relative document path to its site-relative output path:
// "guide/intro.rst" becomes "guide/intro.html".
func PageURL(docPath string) string {
	p := strings.TrimLeft(docPath, "/")
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		p = p[:i]
	}
	return p + ".html"
}

// Anchor appends a fragment to an already built URL. An empty fragment returns u unchanged.
func Anchor(u, fragment string) string {
	if fragment == "" {
		return u
	}
	return u + "#" + fragment
}

// Resolve interprets ref relative to the directory of the content-relative document
// docPath and returns a site-relative path without a leading slash.
func Resolve(docPath, ref string) string {
	return strings.TrimLeft(path.Join("/", path.Dir(docPath), ref), "/")
}
