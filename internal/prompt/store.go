// Package prompt owns the extraction and classification instruction text the
// pipeline sends to the AI service. The store is injected into the
// orchestrator so the pipeline holds no hidden global prompt state and tests
// can swap in an in-memory fake.
package prompt

import "context"

// PromptSet is the pair of instruction texts one recognition run uses.
type PromptSet struct {
	// ExtractionPrompt describes the field names and formats to extract.
	ExtractionPrompt string `json:"extraction_prompt"`

	// ClassificationRules describe how to choose among document archetypes.
	// Empty disables AI-side classification; the keyword fallback still runs.
	ClassificationRules string `json:"classification_rules"`
}

// Store loads and saves the active prompt set.
type Store interface {
	Load(ctx context.Context) (*PromptSet, error)
	Save(ctx context.Context, set *PromptSet) error
}

// DefaultPromptSet returns the production prompts for Hong Kong care-home
// paperwork. Field names here line up with the matcher's alias lists and the
// classifier's field boosts.
func DefaultPromptSet() *PromptSet {
	return &PromptSet{
		ExtractionPrompt: `從文件中抽取以下欄位（找不到的欄位請省略）：
- 中文姓名：病人中文姓名
- 英文姓名：病人英文或拼音姓名
- 身份證號碼：香港身份證號碼，保留原文的遮蔽字元（X、*、括號）
- 出生日期：YYYY-MM-DD
- 年齡：整數
- 覆診日期、覆診時間、覆診地點、覆診專科：覆診期紙適用
- 疫苗名稱、接種日期：疫苗接種記錄適用
- 診斷、入院日期、出院日期：診斷或出院文件適用
日期一律輸出 YYYY-MM-DD。`,
		ClassificationRules: `判斷文件類型，type 必須是其中之一：
- "vaccination"：疫苗接種記錄（疫苗名稱、接種日期、注射記錄）
- "followup"：覆診期紙／預約通知（覆診日期、診所、到診時間）
- "diagnosis"：診斷證明書、醫生證明、出入院記錄
- "unknown"：無法確定
confidence 為 0-100 整數。`,
	}
}
