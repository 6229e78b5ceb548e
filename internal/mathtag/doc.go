// Package mathtag finds TeX formulas in rendered HTML and replaces them with
// placeholder elements for client-side typesetting.
//
// Recognized delimiters are $$...$$ and \[...\] for display math and $...$ and
// \(...\) for inline math. Text inside pre, code, script, style and textarea
// elements is never scanned.
package mathtag
