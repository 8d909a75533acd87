package models

import (
	"encoding/json"

	"github.com/gosimple/slug"
)

// TestCase is one problem test. Sample cases are shown to the player and used
// by "Run Tests"; the full set (sample + hidden) is used on submit.
type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected_output"`
	IsSample bool            `json:"is_sample,omitempty"`
}

// Problem is a static catalog entry. Read-only for the race core.
type Problem struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Difficulty  string `json:"difficulty" gorm:"type:varchar(8);check:difficulty IN ('easy','medium','hard')"`
	Description string `json:"description"`
	Constraints string `json:"constraints"`

	// Serialized payloads, same pattern as storing structured JSON in a text
	// column elsewhere in the codebase. Use the typed accessors below.
	TestCasesJSON   string `json:"-" gorm:"column:test_cases"`
	StarterCodeJSON string `json:"-" gorm:"column:starter_code"`

	Timestamps
}

// SlugFrom normalizes a problem title into its URL slug.
func SlugFrom(title string) string {
	return slug.Make(title)
}

// TestCases decodes the stored test set.
func (p *Problem) TestCases() ([]TestCase, error) {
	var cases []TestCase
	if p.TestCasesJSON == "" {
		return cases, nil
	}
	if err := json.Unmarshal([]byte(p.TestCasesJSON), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// SampleTestCases returns only the cases flagged as samples.
func (p *Problem) SampleTestCases() ([]TestCase, error) {
	all, err := p.TestCases()
	if err != nil {
		return nil, err
	}
	var samples []TestCase
	for _, tc := range all {
		if tc.IsSample {
			samples = append(samples, tc)
		}
	}
	return samples, nil
}

// StarterCode decodes the per-language starter snippets.
func (p *Problem) StarterCode() (map[string]string, error) {
	starter := map[string]string{}
	if p.StarterCodeJSON == "" {
		return starter, nil
	}
	if err := json.Unmarshal([]byte(p.StarterCodeJSON), &starter); err != nil {
		return nil, err
	}
	return starter, nil
}

func (p *Problem) SetTestCases(cases []TestCase) error {
	raw, err := json.Marshal(cases)
	if err != nil {
		return err
	}
	p.TestCasesJSON = string(raw)
	return nil
}

func (p *Problem) SetStarterCode(starter map[string]string) error {
	raw, err := json.Marshal(starter)
	if err != nil {
		return err
	}
	p.StarterCodeJSON = string(raw)
	return nil
}
