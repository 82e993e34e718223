package database

import (
	"fmt"
	"strings"
	"unicode"
)

// The recognizer below accepts a single traversal of the form
// g.step(args).step(args)... and nothing else. Arguments are limited to
// literals, lists, token and predicate helpers, bindings supplied with the
// request and anonymous traversals. Closures, assignments, object creation
// and multiple statements have no production and are rejected.

var traversalSteps = toSet(
	// sources
	"V", "E", "inject",
	// navigation
	"out", "in", "both", "outE", "inE", "bothE", "outV", "inV", "bothV", "otherV",
	// filters
	"has", "hasLabel", "hasId", "hasKey", "hasValue", "hasNot", "is", "not", "and", "or",
	"where", "filter", "dedup", "limit", "range", "skip", "tail", "coin", "sample",
	"simplePath", "cyclicPath", "timeLimit",
	// maps
	"values", "valueMap", "elementMap", "properties", "propertyMap", "id", "label", "key",
	"value", "constant", "identity", "map", "flatMap", "select", "project", "path", "math",
	"unfold", "fold", "index", "element", "tree",
	// aggregation
	"count", "sum", "min", "max", "mean", "group", "groupCount", "aggregate", "store", "cap",
	// modulators and branching
	"by", "as", "from", "to", "with", "order", "repeat", "times", "until", "emit", "loops",
	"union", "coalesce", "choose", "option", "optional", "local", "sideEffect", "barrier",
	"match",
	// terminals
	"toList", "toSet", "next", "hasNext", "iterate", "explain", "profile",
)

var predicates = toSet(
	"eq", "neq", "lt", "lte", "gt", "gte", "inside", "outside", "between", "within", "without",
	"containing", "notContaining", "startingWith", "notStartingWith", "endingWith",
	"notEndingWith", "regex", "notRegex",
)

// tokenEnums lists the members each helper class may be dereferenced with.
var tokenEnums = map[string]map[string]struct{}{
	"P": toSet("eq", "neq", "lt", "lte", "gt", "gte", "inside", "outside", "between",
		"within", "without", "not"),
	"TextP": toSet("containing", "notContaining", "startingWith", "notStartingWith",
		"endingWith", "notEndingWith", "regex", "notRegex"),
	"T":           toSet("id", "label", "key", "value"),
	"Order":       toSet("asc", "desc", "shuffle", "incr", "decr"),
	"Column":      toSet("keys", "values"),
	"Scope":       toSet("local", "global"),
	"Pop":         toSet("first", "last", "all", "mixed"),
	"Cardinality": toSet("single", "list", "set"),
	"Direction":   toSet("OUT", "IN", "BOTH"),
}

// bareTokens are enum members usable without their class prefix.
var bareTokens = toSet(
	"id", "label", "key", "value", "keys", "values", "asc", "desc", "shuffle", "incr", "decr",
	"local", "global", "first", "last", "all", "mixed", "single", "list", "set",
	"OUT", "IN", "BOTH",
)

func toSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func has(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q at offset %d", t.text, t.pos)
}

func lexTraversal(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})
		case unicode.IsDigit(r):
			start := i
			i = scanNumber(rs, i)
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case r == '\'' || r == '"':
			start := i
			end, err := scanString(rs, i)
			if err != nil {
				return nil, err
			}
			i = end
			toks = append(toks, token{tokString, string(rs[start:i]), start})
		case strings.ContainsRune(".(),[];-", r):
			toks = append(toks, token{tokPunct, string(r), i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

func scanNumber(rs []rune, i int) int {
	digits := func() {
		for i < len(rs) && unicode.IsDigit(rs[i]) {
			i++
		}
	}
	digits()
	if i+1 < len(rs) && rs[i] == '.' && unicode.IsDigit(rs[i+1]) {
		i++
		digits()
	}
	if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
		j := i + 1
		if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
			j++
		}
		if j < len(rs) && unicode.IsDigit(rs[j]) {
			i = j
			digits()
		}
	}
	if i < len(rs) && strings.ContainsRune("lLdDfFiI", rs[i]) {
		i++
	}
	return i
}

func scanString(rs []rune, i int) (int, error) {
	quote := rs[i]
	start := i
	i++
	for i < len(rs) {
		switch rs[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1, nil
		default:
			// GString interpolation would run arbitrary code
			if quote == '"' && rs[i] == '$' {
				return 0, fmt.Errorf("string interpolation at offset %d", i)
			}
			i++
		}
	}
	return 0, fmt.Errorf("unterminated string starting at offset %d", start)
}

type traversalParser struct {
	toks     []token
	pos      int
	bindings map[string]any
}

// checkTraversal reports ErrUnsupportedQueryShape unless script is one
// whitelisted traversal rooted at g. Identifiers not followed by a call are
// accepted only when they name a token or a key of bindings.
func checkTraversal(script string, bindings map[string]any) error {
	toks, err := lexTraversal(script)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedQueryShape, err)
	}
	p := &traversalParser{toks: toks, bindings: bindings}
	if err := p.parseScript(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedQueryShape, err)
	}
	return nil
}

func (p *traversalParser) peek() token { return p.toks[p.pos] }

func (p *traversalParser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *traversalParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *traversalParser) isPunct(s string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == s
}

func (p *traversalParser) expect(s string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("expected %q, found %s", s, t)
	}
	return nil
}

func (p *traversalParser) parseScript() error {
	root := p.next()
	if root.kind != tokIdent || root.text != "g" {
		return fmt.Errorf("traversal must start with g, found %s", root)
	}
	if !p.isPunct(".") {
		return fmt.Errorf("expected a step after g, found %s", p.peek())
	}
	if err := p.parseChain(); err != nil {
		return err
	}
	if p.isPunct(";") {
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return fmt.Errorf("unexpected %s after traversal", t)
	}
	return nil
}

// parseChain consumes zero or more .step(args) links.
func (p *traversalParser) parseChain() error {
	for p.isPunct(".") {
		p.next()
		if err := p.parseStep(); err != nil {
			return err
		}
	}
	return nil
}

func (p *traversalParser) parseStep() error {
	name := p.next()
	if name.kind != tokIdent {
		return fmt.Errorf("expected step name, found %s", name)
	}
	if !has(traversalSteps, name.text) {
		return fmt.Errorf("step %q is not allowed", name.text)
	}
	return p.parseArgs()
}

func (p *traversalParser) parseArgs() error {
	if err := p.expect("("); err != nil {
		return err
	}
	if p.isPunct(")") {
		p.next()
		return nil
	}
	for {
		if err := p.parseArg(); err != nil {
			return err
		}
		if p.isPunct(",") {
			p.next()
			continue
		}
		return p.expect(")")
	}
}

func (p *traversalParser) parseArg() error {
	t := p.peek()
	switch t.kind {
	case tokString, tokNumber:
		p.next()
		return nil
	case tokPunct:
		switch t.text {
		case "-":
			p.next()
			if n := p.next(); n.kind != tokNumber {
				return fmt.Errorf("expected number after '-', found %s", n)
			}
			return nil
		case "[":
			return p.parseList()
		}
		return fmt.Errorf("unexpected %s", t)
	case tokIdent:
		return p.parseIdentArg()
	}
	return fmt.Errorf("unexpected %s", t)
}

func (p *traversalParser) parseList() error {
	if err := p.expect("["); err != nil {
		return err
	}
	if p.isPunct("]") {
		p.next()
		return nil
	}
	for {
		if err := p.parseArg(); err != nil {
			return err
		}
		if p.isPunct(",") {
			p.next()
			continue
		}
		return p.expect("]")
	}
}

func (p *traversalParser) parseIdentArg() error {
	t := p.next()
	followedBy := func(s string) bool {
		n := p.peek()
		return n.kind == tokPunct && n.text == s
	}
	switch {
	case t.text == "true" || t.text == "false" || t.text == "null":
		return nil
	case t.text == "__":
		if !followedBy(".") {
			return fmt.Errorf("expected anonymous traversal after __, found %s", p.peek())
		}
		return p.parseChain()
	case tokenEnums[t.text] != nil && followedBy("."):
		return p.parseTokenRef(t.text)
	case followedBy("("):
		if !has(traversalSteps, t.text) && !has(predicates, t.text) {
			return fmt.Errorf("call to %q is not allowed", t.text)
		}
		if err := p.parseArgs(); err != nil {
			return err
		}
		return p.parseChain()
	case has(bareTokens, t.text):
		return nil
	case p.bindings != nil:
		if _, ok := p.bindings[t.text]; ok {
			return nil
		}
	}
	return fmt.Errorf("unknown identifier %q at offset %d", t.text, t.pos)
}

func (p *traversalParser) parseTokenRef(class string) error {
	p.next() // "."
	member := p.next()
	if member.kind != tokIdent || !has(tokenEnums[class], member.text) {
		return fmt.Errorf("%s has no member %s", class, member)
	}
	if !p.isPunct("(") {
		return nil
	}
	if err := p.parseArgs(); err != nil {
		return err
	}
	// predicate composition: P.gt(1).and(P.lt(5))
	for p.isPunct(".") {
		if n := p.peekAt(1); n.kind != tokIdent || (n.text != "and" && n.text != "or" && n.text != "negate") {
			return fmt.Errorf("unexpected %s after predicate", n)
		}
		p.next()
		p.next()
		if err := p.parseArgs(); err != nil {
			return err
		}
	}
	return nil
}
