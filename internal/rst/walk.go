package rst

// Walk calls fn for every block in depth-first order, descending into lists, block
// quotes and nested directive bodies. Returning false from fn skips the children of
// that block.
func Walk(blocks []Block, fn func(Block) bool) {
	for _, b := range blocks {
		if !fn(b) {
			continue
		}
		switch n := b.(type) {
		case *BlockQuote:
			Walk(n.Children, fn)
		case *List:
			for _, it := range n.Items {
				Walk(it.Children, fn)
			}
		case *Directive:
			Walk(n.Children, fn)
		}
	}
}

// InlineSlots returns pointers to every inline sequence owned directly by b, so callers
// can rewrite spans in place.
func InlineSlots(b Block) []*[]Inline {
	switch n := b.(type) {
	case *Paragraph:
		return []*[]Inline{&n.Inlines}
	case *Heading:
		return []*[]Inline{&n.Inlines}
	case *Table:
		var out []*[]Inline
		for i := range n.Header {
			out = append(out, &n.Header[i].Inlines)
		}
		for _, row := range n.Rows {
			for i := range row {
				out = append(out, &row[i].Inlines)
			}
		}
		return out
	}
	return nil
}

// MapInlines replaces every span of spans with fn's result, descending into emphasis
// and strong spans first.
func MapInlines(spans []Inline, fn func(Inline) Inline) []Inline {
	for i, s := range spans {
		switch n := s.(type) {
		case *Emphasis:
			n.Children = MapInlines(n.Children, fn)
		case *Strong:
			n.Children = MapInlines(n.Children, fn)
		}
		spans[i] = fn(spans[i])
	}
	return spans
}
