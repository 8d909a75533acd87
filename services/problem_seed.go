package services

import (
	"encoding/json"
	"log"

	"code-race-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedProblems loads a small starter catalog when the problems table is
// empty, so a fresh deployment can run races immediately. An empty catalog
// is otherwise fatal to queueing.
func SeedProblems(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Problem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, p := range starterProblems() {
		if err := db.Create(&p).Error; err != nil {
			return err
		}
		log.Printf("🌱 Seeded problem: %s (%s)", p.Title, p.Difficulty)
	}
	return nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func starterProblems() []models.Problem {
	twoSum := models.Problem{
		ID:         uuid.NewString(),
		Title:      "Two Sum",
		Slug:       models.SlugFrom("Two Sum"),
		Difficulty: "easy",
		Description: "Given an array of integers nums and an integer target, " +
			"return the indices of the two numbers that add up to target.\n\n" +
			"Each input has exactly one solution, and you may not use the same element twice. " +
			"Return the answer as a list [i, j] with i < j.",
		Constraints: "2 <= len(nums) <= 10^4\n-10^9 <= nums[i] <= 10^9\nExactly one valid answer exists.",
	}
	_ = twoSum.SetTestCases([]models.TestCase{
		{Input: raw(`{"nums": [2, 7, 11, 15], "target": 9}`), Expected: raw(`[0, 1]`), IsSample: true},
		{Input: raw(`{"nums": [3, 2, 4], "target": 6}`), Expected: raw(`[1, 2]`), IsSample: true},
		{Input: raw(`{"nums": [3, 3], "target": 6}`), Expected: raw(`[0, 1]`)},
		{Input: raw(`{"nums": [-1, -2, -3, -4, -5], "target": -8}`), Expected: raw(`[2, 4]`)},
	})
	_ = twoSum.SetStarterCode(map[string]string{
		"python": "def two_sum(nums, target):\n    # Your code here\n    pass\n",
	})

	reverseString := models.Problem{
		ID:         uuid.NewString(),
		Title:      "Reverse Words",
		Slug:       models.SlugFrom("Reverse Words"),
		Difficulty: "easy",
		Description: "Given a sentence s, return it with the order of the words reversed.\n\n" +
			"Words are separated by single spaces and there is no leading or trailing whitespace.",
		Constraints: "1 <= len(s) <= 10^4\ns consists of letters, digits and spaces.",
	}
	_ = reverseString.SetTestCases([]models.TestCase{
		{Input: raw(`"the sky is blue"`), Expected: raw(`"blue is sky the"`), IsSample: true},
		{Input: raw(`"hello"`), Expected: raw(`"hello"`), IsSample: true},
		{Input: raw(`"a b c d"`), Expected: raw(`"d c b a"`)},
	})
	_ = reverseString.SetStarterCode(map[string]string{
		"python": "def reverse_words(s):\n    # Your code here\n    pass\n",
	})

	return []models.Problem{twoSum, reverseString}
}
