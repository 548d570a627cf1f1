package contact

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// Pattern メールアドレスのローカル部パターン
type Pattern struct {
	Name  string
	build func(first, last string) string
}

// Candidate 推定されたメールアドレス候補
type Candidate struct {
	Email      string  `json:"email"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// 企業ドメインでの出現頻度が高い順
var patterns = []struct {
	Pattern
	weight float64
}{
	{Pattern{"first.last", func(f, l string) string { return f + "." + l }}, 0.42},
	{Pattern{"flast", func(f, l string) string { return f[:1] + l }}, 0.18},
	{Pattern{"first", func(f, l string) string { return f }}, 0.12},
	{Pattern{"firstl", func(f, l string) string { return f + l[:1] }}, 0.08},
	{Pattern{"first_last", func(f, l string) string { return f + "_" + l }}, 0.07},
	{Pattern{"last.first", func(f, l string) string { return l + "." + f }}, 0.05},
	{Pattern{"f.last", func(f, l string) string { return f[:1] + "." + l }}, 0.04},
}

// NFDで分解できない字母
var foldedLetters = strings.NewReplacer(
	"ł", "l", "ø", "o", "đ", "d", "ı", "i", "ħ", "h",
	"ß", "ss", "æ", "ae", "œ", "oe", "þ", "th", "ð", "d",
)

// NormalizeName 名前をメールアドレスのローカル部に使える形に正規化
func NormalizeName(name string) string {
	folded := foldedLetters.Replace(strings.ToLower(strings.TrimSpace(name)))
	// transform.Chainは状態を持つため呼び出しごとに組み立てる
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(stripMarks, folded); err == nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDomain ドメインを正規化（スキーム、www、パスを除去）
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	return d
}

// PredictEmails 氏名とドメインからメールアドレス候補を確度順に返す
func PredictEmails(firstName, lastName, domain string) ([]Candidate, error) {
	first := NormalizeName(firstName)
	last := NormalizeName(lastName)
	if first == "" || last == "" {
		return nil, ErrInvalidName
	}
	d := NormalizeDomain(domain)
	if !domainRegex.MatchString(d) {
		return nil, ErrInvalidDomain
	}

	seen := make(map[string]bool, len(patterns))
	candidates := make([]Candidate, 0, len(patterns))
	for _, p := range patterns {
		email := p.build(first, last) + "@" + d
		if seen[email] {
			continue
		}
		seen[email] = true
		candidates = append(candidates, Candidate{
			Email:      email,
			Pattern:    p.Name,
			Confidence: p.weight,
		})
	}
	return candidates, nil
}
