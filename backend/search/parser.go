// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search parses the game list query language and matches games
// against it.
//
//	bears date:2026-05..2026-06 -away:tigers is:mine
package search

import (
	"strings"
	"unicode"

	"github.com/ttbt-io/softball/backend/store"
)

// Operator defines the type of comparison for a term.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".." // date:2026-05..2026-06
)

// Keys understood by Match. Any other key:value token is free text.
const (
	KeyHome  = "home"
	KeyAway  = "away"
	KeyTeam  = "team"
	KeyDate  = "date"
	KeyOwner = "owner"
	KeyIs    = "is"
)

var knownKeys = map[string]bool{
	KeyHome: true, KeyAway: true, KeyTeam: true,
	KeyDate: true, KeyOwner: true, KeyIs: true,
}

// comparison prefixes, longest first
var prefixOps = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

// Term is one key:value criterion.
type Term struct {
	Key      string
	Value    string
	MaxValue string // OpRange only; either bound may be empty
	Operator Operator
	Negate   bool
}

// Query is a parsed search string. Every term and every word must match.
type Query struct {
	Terms []Term
	Words []string
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool {
	return len(q.Terms) == 0 && len(q.Words) == 0
}

// Parse splits a query into terms and free-text words. Quoted values may
// contain spaces. A leading '-' negates a term.
func Parse(input string) Query {
	var q Query
	for _, tok := range tokenize(input) {
		term, ok := parseTerm(tok)
		if !ok {
			if w := strings.ToLower(unquote(tok)); w != "" {
				q.Words = append(q.Words, w)
			}
			continue
		}
		q.Terms = append(q.Terms, term)
	}
	return q
}

func parseTerm(tok string) (Term, bool) {
	var t Term
	if len(tok) > 1 && tok[0] == '-' {
		t.Negate = true
		tok = tok[1:]
	}
	key, val, ok := strings.Cut(tok, ":")
	key = strings.ToLower(key)
	if !ok || !knownKeys[key] || val == "" {
		return Term{}, false
	}
	t.Key, t.Operator = key, OpEqual
	for _, op := range prefixOps {
		if rest, found := strings.CutPrefix(val, string(op)); found {
			t.Operator, val = op, rest
			break
		}
	}
	if t.Operator == OpEqual {
		if lo, hi, found := strings.Cut(val, ".."); found {
			t.Operator = OpRange
			t.Value, t.MaxValue = unquote(lo), unquote(hi)
			return t, true
		}
	}
	t.Value = unquote(val)
	if t.Value == "" {
		return Term{}, false
	}
	return t, true
}

// tokenize splits on spaces outside quotes. Quotes stay in the token.
func tokenize(input string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quote  rune
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

// unquote removes the quotes tokenize kept, wherever they are in s.
func unquote(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, s)
}

// Match reports whether a game matches the query. userID resolves "me" and
// is:mine.
func (q Query) Match(g store.Summary, userID string) bool {
	for _, t := range q.Terms {
		if matchTerm(t, g, userID) == t.Negate {
			return false
		}
	}
	fields := []string{
		strings.ToLower(g.HomeTeamName),
		strings.ToLower(g.AwayTeamName),
		g.Date,
		strings.ToLower(g.OwnerID),
	}
	for _, w := range q.Words {
		found := false
		for _, f := range fields {
			if strings.Contains(f, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchTerm(t Term, g store.Summary, userID string) bool {
	switch t.Key {
	case KeyHome:
		return containsFold(g.HomeTeamName, t.Value)
	case KeyAway:
		return containsFold(g.AwayTeamName, t.Value)
	case KeyTeam:
		return containsFold(g.HomeTeamName, t.Value) || containsFold(g.AwayTeamName, t.Value)
	case KeyOwner:
		want := t.Value
		if strings.EqualFold(want, "me") {
			want = userID
		}
		return want != "" && strings.EqualFold(g.OwnerID, want)
	case KeyIs:
		return strings.EqualFold(t.Value, "mine") && userID != "" && strings.EqualFold(g.OwnerID, userID)
	case KeyDate:
		return matchDate(t, g.Date)
	}
	return false
}

// matchDate compares dates as text at the precision of the value, so
// date:2026-05 covers all of May.
func matchDate(t Term, date string) bool {
	if date == "" {
		return false
	}
	switch t.Operator {
	case OpRange:
		return (t.Value == "" || cmpDate(date, t.Value) >= 0) &&
			(t.MaxValue == "" || cmpDate(date, t.MaxValue) <= 0)
	case OpGreater:
		return cmpDate(date, t.Value) > 0
	case OpGreaterOrEqual:
		return cmpDate(date, t.Value) >= 0
	case OpLess:
		return cmpDate(date, t.Value) < 0
	case OpLessOrEqual:
		return cmpDate(date, t.Value) <= 0
	default:
		return cmpDate(date, t.Value) == 0
	}
}

func cmpDate(date, v string) int {
	if len(date) > len(v) {
		date = date[:len(v)]
	}
	return strings.Compare(date, v)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
