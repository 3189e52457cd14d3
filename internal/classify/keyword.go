package classify

import (
	"strings"

	"github.com/rs/zerolog"

	"docintel/internal/logger"
	"docintel/pkg/models"
)

// keywordGroup awards its weight at most once, no matter how many of its
// keywords appear in the text.
type keywordGroup struct {
	weight   int
	keywords []string
}

// fieldBoost awards its weight when any of the listed extracted fields is
// present and non-empty.
type fieldBoost struct {
	weight int
	fields []string
}

type archetypeRule struct {
	groups []keywordGroup
	boosts []fieldBoost
}

// Care-home paperwork is mostly Traditional Chinese with English letterheads,
// so every archetype carries both. Title phrases weigh more than generic
// keywords.
var archetypeRules = map[models.DocumentType]archetypeRule{
	models.DocumentFollowUp: {
		groups: []keywordGroup{
			{40, []string{"appointment slip", "覆診期紙", "覆診證明", "預約覆診"}},
			{25, []string{"appointment", "覆診", "複診"}},
			{15, []string{"clinic", "門診", "診所", "專科門診", "specialist out-patient"}},
			{10, []string{"到診時間", "請依時到診", "請帶同此紙"}},
		},
		boosts: []fieldBoost{
			{15, []string{"覆診日期", "appointment_date", "followup_date"}},
			{10, []string{"覆診時間", "appointment_time"}},
			{10, []string{"覆診地點", "覆診專科", "appointment_location"}},
		},
	},
	models.DocumentVaccination: {
		groups: []keywordGroup{
			{40, []string{"疫苗接種記錄", "接種記錄", "vaccination record"}},
			{25, []string{"疫苗", "vaccine", "vaccination"}},
			{20, []string{"接種", "注射日期", "immunisation", "immunization"}},
			{15, []string{"流感", "influenza", "肺炎球菌", "pneumococcal", "新冠", "covid"}},
		},
		boosts: []fieldBoost{
			{15, []string{"疫苗名稱", "vaccine_name"}},
			{15, []string{"接種日期", "注射日期", "vaccination_date"}},
		},
	},
	models.DocumentDiagnosis: {
		groups: []keywordGroup{
			{40, []string{"診斷證明書", "醫生證明書", "diagnosis report", "medical certificate"}},
			{25, []string{"診斷", "diagnosis"}},
			{20, []string{"病歷", "到診證明", "主診醫生"}},
			{15, []string{"入院", "出院", "admission", "discharge"}},
		},
		boosts: []fieldBoost{
			{15, []string{"診斷", "diagnosis"}},
			{10, []string{"入院日期", "出院日期", "admission_date", "discharge_date"}},
		},
	},
}

// KeywordClassifier is the deterministic fallback classifier.
type KeywordClassifier struct {
	log zerolog.Logger
}

// NewKeywordClassifier creates the fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{log: logger.WithComponent("classifier")}
}

// Classify scores the lowercased text and field presence against every
// archetype and picks the strictly highest score. Ties fall to the earlier
// entry of Priority; a winner under MinConfidence yields unknown.
func (c *KeywordClassifier) Classify(text string, fields map[string]string) models.Classification {
	lowered := strings.ToLower(text)
	presentFields := presentFieldSet(fields)

	var best models.DocumentType = models.DocumentUnknown
	bestScore := 0
	for _, docType := range Priority {
		score := scoreArchetype(archetypeRules[docType], lowered, presentFields)
		// Strict > keeps the earlier priority entry on ties.
		if score > bestScore {
			bestScore = score
			best = docType
		}
	}

	if bestScore < MinConfidence {
		c.log.Debug().
			Int("best_score", bestScore).
			Msg("No archetype above confidence floor, classifying as unknown")
		return models.Classification{Type: models.DocumentUnknown, Confidence: clampScore(bestScore)}
	}

	c.log.Debug().
		Str("type", string(best)).
		Int("score", bestScore).
		Msg("Keyword classification selected")

	return models.Classification{Type: best, Confidence: clampScore(bestScore)}
}

func scoreArchetype(rule archetypeRule, loweredText string, presentFields map[string]bool) int {
	score := 0
	for _, group := range rule.groups {
		for _, keyword := range group.keywords {
			if strings.Contains(loweredText, keyword) {
				score += group.weight
				break
			}
		}
	}
	for _, boost := range rule.boosts {
		for _, field := range boost.fields {
			if presentFields[strings.ToLower(field)] {
				score += boost.weight
				break
			}
		}
	}
	return score
}

func presentFieldSet(fields map[string]string) map[string]bool {
	present := make(map[string]bool, len(fields))
	for key, value := range fields {
		if strings.TrimSpace(value) != "" {
			present[strings.ToLower(key)] = true
		}
	}
	return present
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
