// Package hostspec parses compact host expressions into concrete host
// lists: numeric ranges with zero-padding, comma lists, and the natural
// host ordering used for final output.
package hostspec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/codexnull/allssh/internal/errdefs"
)

// Token is one host-spec token split into its prefix, range expression
// and suffix parts. A token with an empty range expression names a
// single host.
type Token struct {
	Prefix string
	Ranges string
	Suffix string
}

// tokenPattern captures the leading non-digit run, the digit/comma/dash
// run, and whatever remains.
var tokenPattern = regexp.MustCompile(`^(\D*)([\d,-]*)(.*)$`)

// ParseToken splits a single host-spec token into (prefix, ranges,
// suffix). It never fails; range validity is checked by Expand.
func ParseToken(tok string) Token {
	m := tokenPattern.FindStringSubmatch(tok)
	return Token{Prefix: m[1], Ranges: m[2], Suffix: m[3]}
}

// SplitSpec splits a host spec into tokens on commas that are immediately
// followed by a non-digit character. Commas followed by a digit belong to
// a range expression inside the current token, so "foo1,3,5-7i,bar2"
// yields exactly ["foo1,3,5-7i", "bar2"].
func SplitSpec(spec string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(spec); i++ {
		if spec[i] != ',' {
			continue
		}
		if i+1 < len(spec) && spec[i+1] >= '0' && spec[i+1] <= '9' {
			continue
		}
		if tok := spec[start:i]; tok != "" {
			tokens = append(tokens, tok)
		}
		start = i + 1
	}
	if tok := spec[start:]; tok != "" {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Expand generates the ordered host list for a (prefix, ranges, suffix)
// tuple. Each comma-separated sub-expression is a bare number or a
// "first-last" range. Width follows the digit-width of first; a
// textually shorter last borrows leading digits from first, so "10-2"
// runs 10 through 12. An empty range expression yields the bare prefix.
func Expand(prefix, ranges, suffix string) ([]string, error) {
	if ranges == "" {
		return []string{prefix}, nil
	}

	var hosts []string
	for _, sub := range strings.Split(ranges, ",") {
		if !strings.ContainsAny(sub, "0123456789") {
			return nil, &errdefs.MalformedRange{Token: prefix + ranges + suffix, Msg: fmt.Sprintf("'%s' contains no digits", sub)}
		}

		firstStr, lastStr, isRange := strings.Cut(sub, "-")
		if !isRange {
			lastStr = firstStr
		}
		if lastStr == "" {
			return nil, &errdefs.MalformedRange{Token: prefix + ranges + suffix, Msg: fmt.Sprintf("'%s' is missing a range end", sub)}
		}

		// Borrow leading digits from first when last is shorter, so
		// the range "115-20" means 115 through 120.
		if len(lastStr) < len(firstStr) {
			lastStr = firstStr[:len(firstStr)-len(lastStr)] + lastStr
		}

		first, err := strconv.Atoi(firstStr)
		if err != nil {
			return nil, &errdefs.MalformedRange{Token: prefix + ranges + suffix, Msg: fmt.Sprintf("bad number '%s'", firstStr)}
		}
		last, err := strconv.Atoi(lastStr)
		if err != nil {
			return nil, &errdefs.MalformedRange{Token: prefix + ranges + suffix, Msg: fmt.Sprintf("bad number '%s'", lastStr)}
		}
		if first > last {
			return nil, &errdefs.MalformedRange{Token: prefix + ranges + suffix, Msg: fmt.Sprintf("range '%s' runs backwards", sub)}
		}

		width := len(firstStr)
		for n := first; n <= last; n++ {
			hosts = append(hosts, fmt.Sprintf("%s%0*d%s", prefix, width, n, suffix))
		}
	}

	return hosts, nil
}

// ExpandToken expands a whole token.
func ExpandToken(tok Token) ([]string, error) {
	return Expand(tok.Prefix, tok.Ranges, tok.Suffix)
}

// splitNatural splits a hostname into its leading non-digit run, its
// embedded numeric run, and the rest.
func splitNatural(host string) (alpha string, num int, hasNum bool, rest string) {
	i := 0
	for i < len(host) && (host[i] < '0' || host[i] > '9') {
		i++
	}
	alpha = host[:i]
	j := i
	for j < len(host) && host[j] >= '0' && host[j] <= '9' {
		j++
	}
	if j > i {
		num, _ = strconv.Atoi(host[i:j])
		hasNum = true
	}
	return alpha, num, hasNum, host[j:]
}

// Compare orders hostnames naturally: the leading non-digit runs compare
// lexically, then embedded numbers compare numerically, so foo2 sorts
// before foo10 and bar1 before foo1.
func Compare(a, b string) int {
	aAlpha, aNum, aHas, aRest := splitNatural(a)
	bAlpha, bNum, bHas, bRest := splitNatural(b)

	if c := strings.Compare(aAlpha, bAlpha); c != 0 {
		return c
	}
	switch {
	case aHas && bHas:
		if aNum != bNum {
			if aNum < bNum {
				return -1
			}
			return 1
		}
	case aHas:
		return 1
	case bHas:
		return -1
	}
	return strings.Compare(aRest, bRest)
}

// SortNatural sorts hosts in place using the natural host comparator.
func SortNatural(hosts []string) {
	sort.SliceStable(hosts, func(i, j int) bool {
		return Compare(hosts[i], hosts[j]) < 0
	})
}
