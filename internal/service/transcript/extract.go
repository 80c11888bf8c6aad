package transcript

var defaultSelector = NewSelector(nil)

// Extract returns the best-guess text carried by p. Variants are tried in
// order and the first non-empty trimmed result wins. ok is false when no
// variant yields text.
func Extract(p Payload, sel *Selector) (text string, ok bool) {
	if sel == nil {
		sel = defaultSelector
	}
	for _, v := range p.Variants {
		if text = v.resolve(sel); text != "" {
			return text, true
		}
	}
	return "", false
}
