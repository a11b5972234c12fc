package domain

// Section is one fixed-size slice of transcript sentences.
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Article is the templated document derived from a transcript.
type Article struct {
	Title        string    `json:"title"`
	Introduction string    `json:"introduction"`
	Sections     []Section `json:"sections"`
	Conclusion   string    `json:"conclusion"`
}

// AudioInfo describes the extracted audio file shown next to the player.
type AudioInfo struct {
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
	SizeLabel string `json:"sizeLabel"`
}

// Conversion is the full payload of a finished job.
type Conversion struct {
	JobID      string    `json:"jobId"`
	SourceURL  string    `json:"sourceUrl"`
	Title      string    `json:"title"`
	Transcript string    `json:"transcript"`
	Article    Article   `json:"article"`
	Audio      AudioInfo `json:"audio"`
}
