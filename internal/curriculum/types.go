package curriculum

// Topic is one seed study material loaded from YAML.
type Topic struct {
	ID           string      `yaml:"id"`
	Name         string      `yaml:"name"`
	Subject      string      `yaml:"subject"`
	MaterialType string      `yaml:"material_type"`
	Difficulty   string      `yaml:"difficulty"`
	LastAccessed string      `yaml:"last_accessed"`
	Questions    []Question  `yaml:"questions"`
	Flashcards   []Flashcard `yaml:"flashcards"`
	Notes        string      `yaml:"notes"`
	Cheatsheet   string      `yaml:"cheatsheet"`
}

// Question is a multiple-choice question within a quiz topic.
type Question struct {
	Text    string   `yaml:"text"`
	Answers []string `yaml:"answers"`
	Correct int      `yaml:"correct"`
	Hint    string   `yaml:"hint"`
}

// Flashcard is a term/definition pair within a flashcards topic.
type Flashcard struct {
	Term       string `yaml:"term"`
	Definition string `yaml:"definition"`
}

// Subject represents a seed subject folder (e.g., Physics) and the
// reference sources it starts with.
type Subject struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Sources []Source `yaml:"sources"`
}

// Source is an imported reference file listed under a subject.
type Source struct {
	Name     string `yaml:"name"`
	FileType string `yaml:"file_type"`
	Size     string `yaml:"size"`
}
