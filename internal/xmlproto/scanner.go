// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xmlproto implements the XML wire adapter (C4): a hand-rolled,
// byte-driven parser matching the legacy dialect, and a pretty-printing
// serialiser for the same dialect.
package xmlproto

import (
	"bufio"
	"errors"
	"io"
)

// state is the parser's state machine, matching the state names named
// in the specification verbatim.
type state int

const (
	stateIdle state = iota
	stateBeginTag1
	stateBeginTag
	stateAttributeName1
	stateAttributeName
	stateAttributeValue1
	stateAttributeValue
	stateText1
	stateText
	stateEndTag1
	stateEndTag2
	stateEndTag
	stateError
)

const maxNameLen = 128

// TokenKind discriminates the token variants the Scanner produces.
type TokenKind int

const (
	TokenStartTag TokenKind = iota
	TokenEndTag
	TokenText
)

// Token is one parser event. For TokenStartTag, SelfClosing is set when
// the tag was written as `<name .../>`; the scanner then synthesizes an
// immediately-following TokenEndTag on the next call to Next.
type Token struct {
	Kind        TokenKind
	Name        string
	Attrs       map[string]string
	Text        string
	SelfClosing bool
}

var (
	ErrUnbalancedTags = errors.New("xmlproto: unbalanced tags")
	ErrEOFInQuote     = errors.New("xmlproto: eof inside quoted attribute value")
	ErrMalformed      = errors.New("xmlproto: malformed markup")
)

// Scanner is the byte-driven tokenizer described in §4.4. It consumes
// one byte at a time from an internally buffered reader. Per the open
// question on parser laxness, it tolerates liberal whitespace and never
// rejects an unrecognised attribute name (that judgement belongs to the
// decoder) but refuses structurally invalid input: unbalanced tags and
// EOF inside a quoted value are reported as errors rather than silently
// tolerated.
type Scanner struct {
	r     *bufio.Reader
	state state
	depth int

	tagName     []byte
	attrName    []byte
	attrValue   []byte
	attrs       map[string]string
	text        []byte
	quote       byte
	selfClosing bool

	// pendingEnd holds the tag name of a synthetic end tag owed after a
	// self-closing start tag was just emitted.
	pendingEnd string
}

// NewScanner wraps r for tokenizing.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 4096), state: stateIdle}
}

func isNameByte(b byte) bool {
	return b == '_' || b == '-' || b == '.' || b == ':' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func decodeEntities(s []byte) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			out = append(out, s[i])
			continue
		}
		rest := s[i:]
		switch {
		case hasPrefix(rest, "&amp;"):
			out = append(out, '&')
			i += 4
		case hasPrefix(rest, "&lt;"):
			out = append(out, '<')
			i += 3
		case hasPrefix(rest, "&gt;"):
			out = append(out, '>')
			i += 3
		case hasPrefix(rest, "&quot;"):
			out = append(out, '"')
			i += 5
		case hasPrefix(rest, "&apos;"):
			out = append(out, '\'')
			i += 5
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func hasPrefix(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b[i] != s[i] {
			return false
		}
	}
	return true
}

// Next returns the next token, or io.EOF once the underlying reader is
// exhausted at a tag boundary (depth 0, idle state).
func (s *Scanner) Next() (Token, error) {
	if s.pendingEnd != "" {
		name := s.pendingEnd
		s.pendingEnd = ""
		s.depth--
		if s.depth < 0 {
			return Token{}, ErrUnbalancedTags
		}
		return Token{Kind: TokenEndTag, Name: name}, nil
	}

	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if s.quote != 0 {
					return Token{}, ErrEOFInQuote
				}
				if s.depth == 0 && (s.state == stateIdle || s.state == stateText1) {
					return Token{}, io.EOF
				}
				return Token{}, ErrUnbalancedTags
			}
			return Token{}, err
		}

		switch s.state {
		case stateIdle:
			if b == '<' {
				s.state = stateBeginTag1
				s.tagName = s.tagName[:0]
			}
			// Outside any element, bytes are ignored.

		case stateBeginTag1:
			switch {
			case b == '/':
				s.state = stateEndTag1
				s.tagName = s.tagName[:0]
			case isNameByte(b):
				s.state = stateBeginTag
				s.tagName = append(s.tagName, b)
			case isSpace(b):
				// tolerate stray whitespace after '<'
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateBeginTag:
			switch {
			case isNameByte(b):
				if len(s.tagName) < maxNameLen {
					s.tagName = append(s.tagName, b)
				}
			case isSpace(b):
				s.state = stateAttributeName1
				s.attrs = map[string]string{}
			case b == '/':
				s.selfClosing = true
			case b == '>':
				return s.closeStartTag()
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateAttributeName1:
			switch {
			case isSpace(b):
				// skip
			case b == '/':
				s.selfClosing = true
			case b == '>':
				return s.closeStartTag()
			case isNameByte(b):
				s.state = stateAttributeName
				s.attrName = []byte{b}
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateAttributeName:
			switch {
			case isNameByte(b):
				s.attrName = append(s.attrName, b)
			case b == '=':
				s.state = stateAttributeValue1
			case isSpace(b):
				s.state = stateAttributeName1
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateAttributeValue1:
			switch {
			case b == '"' || b == '\'':
				s.quote = b
				s.attrValue = s.attrValue[:0]
				s.state = stateAttributeValue
			case isSpace(b):
				// tolerate whitespace around '='
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateAttributeValue:
			if b == s.quote {
				s.attrs[string(s.attrName)] = decodeEntities(s.attrValue)
				s.quote = 0
				s.state = stateAttributeName1
			} else {
				s.attrValue = append(s.attrValue, b)
			}

		case stateText1, stateText:
			if b == '<' {
				txt := decodeEntities(s.text)
				s.state = stateBeginTag1
				s.tagName = s.tagName[:0]
				if s.depth == 2 && len(s.text) > 0 {
					return Token{Kind: TokenText, Text: txt}, nil
				}
			} else {
				// Only leaf element content (depth == 2) is materialised
				// as a token, per §4.4, but we accumulate regardless so a
				// depth check right before the closing '<' is correct.
				s.state = stateText
				s.text = append(s.text, b)
			}

		case stateEndTag1:
			if isNameByte(b) {
				s.tagName = append(s.tagName, b)
				s.state = stateEndTag
			} else if isSpace(b) {
				// tolerate
			} else {
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateEndTag:
			switch {
			case isNameByte(b):
				s.tagName = append(s.tagName, b)
			case isSpace(b):
				s.state = stateEndTag2
			case b == '>':
				return s.closeEndTag()
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateEndTag2:
			switch {
			case isSpace(b):
				// tolerate trailing whitespace before '>'
			case b == '>':
				return s.closeEndTag()
			default:
				s.state = stateError
				return Token{}, ErrMalformed
			}

		case stateError:
			return Token{}, ErrMalformed
		}
	}
}

func (s *Scanner) closeStartTag() (Token, error) {
	name := string(s.tagName)
	attrs := s.attrs
	if attrs == nil {
		attrs = map[string]string{}
	}
	tok := Token{Kind: TokenStartTag, Name: name, Attrs: attrs, SelfClosing: s.selfClosing}

	s.depth++
	s.text = s.text[:0]
	s.state = stateText1
	if s.selfClosing {
		s.selfClosing = false
		s.pendingEnd = name
	}
	return tok, nil
}

func (s *Scanner) closeEndTag() (Token, error) {
	s.depth--
	if s.depth < 0 {
		return Token{}, ErrUnbalancedTags
	}
	s.state = stateText1
	s.text = s.text[:0]
	return Token{Kind: TokenEndTag, Name: string(s.tagName)}, nil
}
