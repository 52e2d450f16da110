package pfilter

import (
	"strings"

	"github.com/kf7qex/gotnc/internal/ax25"
)

type tokenType int

const (
	tokAnd tokenType = iota
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokFilterSpec
	tokEOL
)

// parser is one single-use recursive-descent evaluation over one filter
// expression against one packet. Grounded on src/pfilter.go's pfstate_t /
// next_token / parse_expr family, generalized to the primitives this
// package supports.
type parser struct {
	src     string
	rest    string
	tokType tokenType
	tokStr  string

	pkt     *ax25.Packet
	decoded *Decoded
	isAPRS  bool
	eval    *Evaluator
}

func (p *parser) next() {
	p.rest = strings.TrimLeft(p.rest, " ")

	if len(p.rest) == 0 {
		p.tokType = tokEOL
		p.tokStr = ""
		return
	}

	switch p.rest[0] {
	case '&':
		p.rest = p.rest[1:]
		p.tokType = tokAnd
	case '|':
		p.rest = p.rest[1:]
		p.tokType = tokOr
	case '!':
		p.rest = p.rest[1:]
		p.tokType = tokNot
	case '(':
		p.rest = p.rest[1:]
		p.tokType = tokLParen
	case ')':
		p.rest = p.rest[1:]
		p.tokType = tokRParen
	default:
		i := strings.IndexByte(p.rest, ' ')
		if i < 0 {
			p.tokStr = p.rest
			p.rest = ""
		} else {
			p.tokStr = p.rest[:i]
			p.rest = p.rest[i:]
		}
		p.tokType = tokFilterSpec
	}
}

// parseExpr :: orExpr
func (p *parser) parseExpr() int { return p.parseOr() }

// orExpr :: andExpr [ "|" andExpr ]...
func (p *parser) parseOr() int {
	result := p.parseAnd()
	if result < 0 {
		return -1
	}
	for p.tokType == tokOr {
		p.next()
		e := p.parseAnd()
		if e < 0 {
			return -1
		}
		result |= e
	}
	return result
}

// andExpr :: primary [ "&" primary ]...
func (p *parser) parseAnd() int {
	result := p.parsePrimary()
	if result < 0 {
		return -1
	}
	for p.tokType == tokAnd {
		p.next()
		e := p.parsePrimary()
		if e < 0 {
			return -1
		}
		result &= e
	}
	return result
}

// primary :: "(" expr ")" | "!" primary | filterSpec
func (p *parser) parsePrimary() int {
	switch p.tokType {
	case tokLParen:
		p.next()
		result := p.parseExpr()
		if p.tokType != tokRParen {
			return -1
		}
		p.next()
		return result
	case tokNot:
		p.next()
		e := p.parsePrimary()
		if e < 0 {
			return -1
		}
		return 1 - e
	case tokFilterSpec:
		return p.parseFilterSpec()
	default:
		return -1
	}
}

func (p *parser) parseFilterSpec() int {
	spec := p.tokStr
	p.next()

	if spec == "0" {
		return 0
	}
	if spec == "1" {
		return 1
	}
	if len(spec) < 2 {
		return -1
	}

	letter := spec[0]
	if !p.isAPRS && !strings.ContainsRune("bdvu", rune(letter)) {
		return -1
	}

	switch letter {
	case 'b':
		return boolToInt(filtBODGU(spec, p.pkt.Source.String()))
	case 'o':
		return boolToInt(filtBODGU(spec, p.decoded.Name))
	case 'd':
		return filtUsedDigis(spec, p.pkt, true)
	case 'v':
		return filtUsedDigis(spec, p.pkt, false)
	case 'g':
		if !p.decoded.IsMessageLike {
			return 0
		}
		return boolToInt(filtBODGU(spec, p.decoded.Addressee))
	case 'u':
		dti := p.pkt.DTI()
		if dti == '\'' || dti == '`' {
			return 0
		}
		return boolToInt(filtBODGU(spec, p.pkt.Dest.String()))
	case 't':
		return filtType(spec, p.decoded)
	case 'r':
		return filtRange(spec, p.decoded)
	case 's':
		return filtSymbol(spec, p.decoded)
	case 'i':
		return filtIGateMessaging(spec, p.decoded, p.eval)
	default:
		return -1
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func filtUsedDigis(spec string, pkt *ax25.Packet, wantUsed bool) int {
	for _, a := range pkt.Digis {
		if a.H != wantUsed {
			continue
		}
		bare := a
		bare.H = false // match "CALL-SSID" without the used-marker '*'
		if filtBODGU(spec, bare.String()) {
			return 1
		}
	}
	return 0
}
