package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docintel/pkg/models"
)

func TestClassifyAppointmentSlip(t *testing.T) {
	c := NewKeywordClassifier()

	got := c.Classify("Appointment Slip\nSpecialist Out-Patient Clinic", nil)

	assert.Equal(t, models.DocumentFollowUp, got.Type)
	assert.GreaterOrEqual(t, got.Confidence, 60)
}

func TestClassifyChineseFollowUpSlip(t *testing.T) {
	c := NewKeywordClassifier()

	text := "覆診期紙\n專科門診\n到診時間: 09:30\n請依時到診"
	got := c.Classify(text, nil)

	assert.Equal(t, models.DocumentFollowUp, got.Type)
	assert.GreaterOrEqual(t, got.Confidence, 80)
}

func TestClassifyVaccinationRecord(t *testing.T) {
	c := NewKeywordClassifier()

	got := c.Classify("流感疫苗接種記錄\n注射日期: 2024-09-15", nil)

	assert.Equal(t, models.DocumentVaccination, got.Type)
	assert.Equal(t, 100, got.Confidence)
}

func TestClassifyDiagnosisReport(t *testing.T) {
	c := NewKeywordClassifier()

	text := "診斷證明書\n診斷: 上呼吸道感染\n入院日期: 2024-01-03"
	got := c.Classify(text, nil)

	assert.Equal(t, models.DocumentDiagnosis, got.Type)
	assert.GreaterOrEqual(t, got.Confidence, 80)
}

func TestClassifyBelowFloorIsUnknown(t *testing.T) {
	c := NewKeywordClassifier()

	// "clinic" alone scores 15, below the confidence floor.
	got := c.Classify("general clinic newsletter", nil)

	assert.Equal(t, models.DocumentUnknown, got.Type)
	assert.Less(t, got.Confidence, MinConfidence)
}

func TestClassifyEmptyTextIsUnknown(t *testing.T) {
	c := NewKeywordClassifier()

	got := c.Classify("", nil)

	assert.Equal(t, models.DocumentUnknown, got.Type)
	assert.Equal(t, 0, got.Confidence)
}

func TestClassifyTieFallsToPriorityOrder(t *testing.T) {
	c := NewKeywordClassifier()

	// Follow-up scores 25+15 and vaccination scores 25+15; the tie goes to
	// the earlier priority entry.
	got := c.Classify("覆診 門診 疫苗 流感", nil)

	assert.Equal(t, models.DocumentFollowUp, got.Type)
	assert.Equal(t, 40, got.Confidence)
}

func TestClassifyKeywordGroupCountsOnce(t *testing.T) {
	c := NewKeywordClassifier()

	// Repeating a keyword, or hitting several keywords of the same group,
	// must not inflate the score past the group weight.
	once := c.Classify("疫苗", nil)
	repeated := c.Classify("疫苗 疫苗 vaccine vaccination 疫苗", nil)

	assert.Equal(t, once.Confidence, repeated.Confidence)
}

func TestClassifyFieldBoosts(t *testing.T) {
	c := NewKeywordClassifier()

	fields := map[string]string{
		"覆診日期": "2024-10-01",
		"覆診時間": "09:30",
	}
	got := c.Classify("覆診", fields)

	// 25 for the keyword plus 15 and 10 for the present fields.
	assert.Equal(t, models.DocumentFollowUp, got.Type)
	assert.Equal(t, 50, got.Confidence)
}

func TestClassifyIgnoresEmptyFieldValues(t *testing.T) {
	c := NewKeywordClassifier()

	fields := map[string]string{"覆診日期": "   "}
	got := c.Classify("覆診", fields)

	assert.Equal(t, models.DocumentUnknown, got.Type)
	assert.Equal(t, 25, got.Confidence)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewKeywordClassifier()

	got := c.Classify("VACCINATION RECORD", nil)

	assert.Equal(t, models.DocumentVaccination, got.Type)
}
