package models

// WordBox is one recognised word with its bounding box normalised to [0,1]
// of the source frame.
type WordBox struct {
	Text string  `json:"text"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// Entry is one captured frame's searchable record
type Entry struct {
	ID          int64
	App         string
	Title       string
	Text        string
	Timestamp   int64 // microseconds since epoch
	Embedding   []float32
	WordsCoords []WordBox
	// AIText and AIWordsCoords are nil until an enhancement has run.
	AIText        *string
	AIWordsCoords []WordBox
}

// EntrySummary is the wire shape of an entry. It never carries the embedding.
type EntrySummary struct {
	ID            int64     `json:"id"`
	App           string    `json:"app"`
	Title         string    `json:"title"`
	Text          string    `json:"text"`
	Timestamp     int64     `json:"timestamp"`
	WordsCoords   []WordBox `json:"words_coords"`
	AIText        *string   `json:"ai_text"`
	AIWordsCoords []WordBox `json:"ai_words_coords"`
}

// Summary converts e into its wire shape.
func (e Entry) Summary() EntrySummary {
	words := e.WordsCoords
	if words == nil {
		words = []WordBox{}
	}
	aiWords := e.AIWordsCoords
	if aiWords == nil {
		aiWords = []WordBox{}
	}
	return EntrySummary{
		ID:            e.ID,
		App:           e.App,
		Title:         e.Title,
		Text:          e.Text,
		Timestamp:     e.Timestamp,
		WordsCoords:   words,
		AIText:        e.AIText,
		AIWordsCoords: aiWords,
	}
}

// SearchResult represents one ranked hit
type SearchResult struct {
	Timestamp    int64   `json:"timestamp"`
	Text         string  `json:"text"`
	Score        float32 `json:"score,omitempty"`
	KeywordBoost float32 `json:"keyword_boost,omitempty"`
}

