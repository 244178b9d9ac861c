// Package numerology implements the Pythagorean-style number reduction used by readings.
package numerology

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Numbers holds the five computed values of a reading.
type Numbers struct {
	Destiny      int `json:"destiny_number"`
	Soul         int `json:"soul_number"`
	Personality  int `json:"personality_number"`
	Expression   int `json:"expression_number"`
	PersonalYear int `json:"personal_year"`
}

// IsMaster reports whether n is one of the master numbers kept unreduced.
func IsMaster(n int) bool {
	return n == 11 || n == 22 || n == 33
}

// Reduce repeatedly sums decimal digits until the value is at most 9 or a master number.
func Reduce(n int) int {
	if n < 0 {
		n = -n
	}
	for n > 9 && !IsMaster(n) {
		sum := 0
		for n > 0 {
			sum += n % 10
			n /= 10
		}
		n = sum
	}
	return n
}

// letterValue maps A..Z to 1..26. Accented letters fold to their base letter;
// everything else counts as zero.
func letterValue(r rune) int {
	r = unicode.ToUpper(r)
	if r >= 'A' && r <= 'Z' {
		return int(r-'A') + 1
	}
	return 0
}

// fold strips combining marks so "João" sums like "Joao".
func fold(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// letterValues lists the value of each letter in w, skipping digits and punctuation.
func letterValues(w string) []int {
	var out []int
	for _, r := range w {
		if v := letterValue(r); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// LetterSum adds the values of every letter in s.
func LetterSum(s string) int {
	total := 0
	for _, r := range fold(s) {
		total += letterValue(r)
	}
	return total
}

// Compute derives all numbers for a full name and YYYY-MM-DD birth date.
// Destiny and expression both come from the whole name. Soul uses the first
// letter of each word, personality the last letter of each word; words
// without letters are skipped.
func Compute(fullName, birthDate string, now time.Time) (Numbers, error) {
	birth, err := time.Parse(time.DateOnly, birthDate)
	if err != nil {
		return Numbers{}, err
	}

	var first, last int
	for _, w := range strings.Fields(fold(fullName)) {
		values := letterValues(w)
		if len(values) == 0 {
			continue
		}
		first += values[0]
		last += values[len(values)-1]
	}

	full := Reduce(LetterSum(fullName))
	return Numbers{
		Destiny:      full,
		Expression:   full,
		Soul:         Reduce(first),
		Personality:  Reduce(last),
		PersonalYear: Reduce(now.Year() + int(birth.Month()) + birth.Day()),
	}, nil
}
