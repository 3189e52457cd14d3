// Package match resolves an extracted document against the resident roster.
// Field names coming out of OCR extraction vary run to run, so each identity
// attribute is looked up through an ordered alias list, normalized, and
// scored with weighted partial-match rules. The output is a ranked candidate
// list; a match is never auto-applied — the caller always asks a human to
// confirm.
package match

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/width"

	"docintel/internal/logger"
	"docintel/pkg/models"
)

// Field weights. An identifier hit is the strongest single clue, then the
// Chinese name, then the romanized name.
const (
	weightChineseName = 40
	weightEnglishName = 35
	weightIDExact     = 50
	weightBirthDate   = 30
	weightAge         = 15

	// Partial identifier credit scales linearly in this band as the match
	// rate climbs from the minimum toward 1.0.
	weightIDPartialFloor   = 25
	weightIDPartialCeiling = 45

	// Partial identifier matching requires at least this many valid
	// positions matched and at least this match rate.
	idMinMatched   = 3
	idMinMatchRate = 0.6

	// A candidate backed by a single field is capped here so an ambiguous
	// single-clue match always lands in front of a human.
	singleFieldCap = 65

	ageToleranceYears = 1
)

// Matched field names reported on candidates.
const (
	FieldChineseName = "chinese_name"
	FieldEnglishName = "english_name"
	FieldHKID        = "hkid"
	FieldBirthDate   = "birth_date"
	FieldAge         = "age"
)

// Ordered alias lists; the first non-empty extracted field wins.
var (
	chineseNameAliases = []string{"中文姓名", "姓名", "病人姓名", "中文名", "名字"}
	englishNameAliases = []string{"英文姓名", "english name", "english_name", "patient name", "name"}
	idAliases          = []string{"身份證號碼", "身份證號", "身份證", "hkid", "id number", "id"}
	birthDateAliases   = []string{"出生日期", "birth date", "birth_date", "date of birth", "dob"}
	ageAliases         = []string{"年齡", "age"}
)

// idRedactionChars are placeholders the OCR source substitutes for masked
// identifier digits. Positions holding one of these never count as valid.
var idRedactionChars = map[rune]bool{
	'X': true, '_': true, '*': true, '(': true, ')': true,
}

var birthDateLayouts = []string{
	"2006-01-02", "2006/01/02", "02/01/2006", "02-01-2006", "2/1/2006", "2006年1月2日",
}

// Matcher scores roster residents against extracted identity fields.
type Matcher struct {
	now func() time.Time
	log zerolog.Logger
}

// NewMatcher creates a matcher using the wall clock for age derivation.
func NewMatcher() *Matcher {
	return NewMatcherWithClock(time.Now)
}

// NewMatcherWithClock creates a matcher with an explicit clock (for testing).
func NewMatcherWithClock(now func() time.Time) *Matcher {
	return &Matcher{
		now: now,
		log: logger.WithComponent("matcher"),
	}
}

// Match scores every roster resident and returns candidates ranked by
// confidence, descending. Residents without a single contributing field are
// omitted. Equal-confidence order is unspecified.
func (m *Matcher) Match(fields map[string]string, roster []models.Resident) []models.CandidateMatch {
	lowered := lowerKeys(fields)

	extracted := extractedIdentity{
		chineseName: normalizeChineseName(lookupAlias(lowered, chineseNameAliases)),
		englishName: normalizeEnglishName(lookupAlias(lowered, englishNameAliases)),
		identifier:  normalizeIdentifier(lookupAlias(lowered, idAliases)),
		birthDate:   lookupAlias(lowered, birthDateAliases),
		age:         lookupAlias(lowered, ageAliases),
	}

	var candidates []models.CandidateMatch
	for _, resident := range roster {
		if candidate, ok := m.scoreResident(extracted, resident); ok {
			candidates = append(candidates, candidate)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	m.log.Debug().
		Int("roster_size", len(roster)).
		Int("candidates", len(candidates)).
		Msg("Resident matching completed")

	return candidates
}

type extractedIdentity struct {
	chineseName string
	englishName string
	identifier  string
	birthDate   string
	age         string
}

func (m *Matcher) scoreResident(extracted extractedIdentity, resident models.Resident) (models.CandidateMatch, bool) {
	score := 0
	var matched []string

	if w := scoreChineseName(extracted.chineseName, resident); w > 0 {
		score += w
		matched = append(matched, FieldChineseName)
	}
	if w := scoreEnglishName(extracted.englishName, resident); w > 0 {
		score += w
		matched = append(matched, FieldEnglishName)
	}
	if w := scoreIdentifier(extracted.identifier, normalizeIdentifier(resident.HKID)); w > 0 {
		score += w
		matched = append(matched, FieldHKID)
	}
	if w := scoreBirthDate(extracted.birthDate, resident); w > 0 {
		score += w
		matched = append(matched, FieldBirthDate)
	}
	if w := m.scoreAge(extracted.age, resident); w > 0 {
		score += w
		matched = append(matched, FieldAge)
	}

	if len(matched) == 0 {
		return models.CandidateMatch{}, false
	}
	if len(matched) == 1 && score > singleFieldCap {
		score = singleFieldCap
	}
	if score > 100 {
		score = 100
	}

	return models.CandidateMatch{
		ResidentID:    resident.ID,
		MatchedFields: matched,
		Confidence:    score,
	}, true
}

func scoreChineseName(extracted string, resident models.Resident) int {
	name := normalizeChineseName(resident.ChineseName())
	if extracted == "" || name == "" {
		return 0
	}
	if extracted == name || strings.Contains(name, extracted) || strings.Contains(extracted, name) {
		return weightChineseName
	}
	return 0
}

func scoreEnglishName(extracted string, resident models.Resident) int {
	name := normalizeEnglishName(resident.EnglishName)
	if extracted == "" || name == "" {
		return 0
	}
	if extracted == name || strings.Contains(name, extracted) || strings.Contains(extracted, name) {
		return weightEnglishName
	}
	return 0
}

// scoreIdentifier compares normalized identifiers. Exact equality wins the
// full weight. Otherwise positions are walked up to the longer string's
// length: a position is valid only when the extracted character exists there
// and is not a redaction placeholder, and matched when the resident
// character at the same position is identical. Enough valid matches at a
// high enough rate earn partial credit scaled linearly within the band.
func scoreIdentifier(extracted, residentID string) int {
	if extracted == "" || residentID == "" {
		return 0
	}
	if extracted == residentID {
		return weightIDExact
	}

	exRunes := []rune(extracted)
	resRunes := []rune(residentID)
	length := len(exRunes)
	if len(resRunes) > length {
		length = len(resRunes)
	}

	valid, matchedCount := 0, 0
	for i := 0; i < length; i++ {
		if i >= len(exRunes) || idRedactionChars[exRunes[i]] {
			continue
		}
		valid++
		if i < len(resRunes) && exRunes[i] == resRunes[i] {
			matchedCount++
		}
	}

	if matchedCount < idMinMatched || valid == 0 {
		return 0
	}
	rate := float64(matchedCount) / float64(valid)
	if rate < idMinMatchRate {
		return 0
	}

	band := float64(weightIDPartialCeiling - weightIDPartialFloor)
	return weightIDPartialFloor + int(band*(rate-idMinMatchRate)/(1-idMinMatchRate)+0.5)
}

func scoreBirthDate(extracted string, resident models.Resident) int {
	if extracted == "" || resident.BirthDate.IsZero() {
		return 0
	}
	parsed, ok := parseBirthDate(extracted)
	if !ok {
		return 0
	}
	y1, m1, d1 := parsed.Date()
	y2, m2, d2 := resident.BirthDate.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return weightBirthDate
	}
	return 0
}

func (m *Matcher) scoreAge(extracted string, resident models.Resident) int {
	if extracted == "" {
		return 0
	}
	age, ok := parseAge(extracted)
	if !ok {
		return 0
	}
	residentAge := resident.Age(m.now())
	if residentAge < 0 {
		return 0
	}
	diff := age - residentAge
	if diff < 0 {
		diff = -diff
	}
	if diff <= ageToleranceYears {
		return weightAge
	}
	return 0
}

func lowerKeys(fields map[string]string) map[string]string {
	lowered := make(map[string]string, len(fields))
	for key, value := range fields {
		lowered[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return lowered
}

func lookupAlias(fields map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if value := strings.TrimSpace(fields[strings.ToLower(alias)]); value != "" {
			return value
		}
	}
	return ""
}

func parseBirthDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range birthDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func parseAge(value string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, width.Narrow.String(value))
	if digits == "" || len(digits) > 3 {
		return 0, false
	}
	age := 0
	for _, r := range digits {
		age = age*10 + int(r-'0')
	}
	return age, true
}
