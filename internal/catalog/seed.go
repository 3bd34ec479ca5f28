package catalog

import "proctored-quiz-engine/internal/domain"

// SeedTopic is a topic optionally scoped to one class.
type SeedTopic struct {
	domain.Topic
	ClassID string
}

// Seed is static catalog content used to populate a backend.
type Seed struct {
	Subjects []domain.Subject
	// Classes maps class names to class IDs.
	Classes   map[string]string
	Topics    []SeedTopic
	Questions []domain.Question
}

// DemoSeed is a small catalog used when no database is configured.
// Physics has a topic but no questions.
func DemoSeed() Seed {
	return Seed{
		Subjects: []domain.Subject{
			{ID: "sub-math", CatalogName: "Mathematics"},
			{ID: "sub-eng", CatalogName: "English"},
			{ID: "sub-phy", CatalogName: "Physics"},
		},
		Classes: map[string]string{"SS1": "class-ss1", "SS2": "class-ss2"},
		Topics: []SeedTopic{
			{Topic: domain.Topic{ID: "top-alg", SubjectID: "sub-math", Name: "Algebra"}},
			{Topic: domain.Topic{ID: "top-gram", SubjectID: "sub-eng", Name: "Grammar"}},
			{Topic: domain.Topic{ID: "top-lit", SubjectID: "sub-eng", Name: "Literature"}, ClassID: "class-ss2"},
			{Topic: domain.Topic{ID: "top-mech", SubjectID: "sub-phy", Name: "Mechanics"}},
		},
		Questions: []domain.Question{
			{
				ID: "q-math-1", SubjectID: "sub-math", TopicID: "top-alg",
				Text:    "Solve for x: 2x + 3 = 7",
				OptionA: "1", OptionB: "2", OptionC: "3", OptionD: "4",
				CorrectOption: domain.OptionB,
			},
			{
				ID: "q-math-2", SubjectID: "sub-math", TopicID: "top-alg",
				Text:    "What is 3 squared?",
				OptionA: "6", OptionB: "8", OptionC: "9", OptionD: "12",
				CorrectOption: domain.OptionC,
			},
			{
				ID: "q-eng-1", SubjectID: "sub-eng", TopicID: "top-gram",
				Text:    "Pick the noun: run, quickly, table, blue",
				OptionA: "run", OptionB: "quickly", OptionC: "table", OptionD: "blue",
				CorrectOption: domain.OptionC,
			},
			{
				ID: "q-eng-2", SubjectID: "sub-eng", TopicID: "top-gram",
				Text:    "Plural of child?",
				OptionA: "childs", OptionB: "children", OptionC: "childes", OptionD: "child",
				CorrectOption: domain.OptionB,
			},
			{
				ID: "q-eng-3", SubjectID: "sub-eng", TopicID: "top-lit",
				Text:    "Who wrote Things Fall Apart?",
				OptionA: "Chinua Achebe", OptionB: "Wole Soyinka", OptionC: "Ngugi wa Thiong'o", OptionD: "Ben Okri",
				CorrectOption: domain.OptionA,
			},
		},
	}
}
