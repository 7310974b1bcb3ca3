package ingest

// Event asks the worker to extract metadata from an uploaded book file.
type Event struct {
	BookID  string `json:"bookId"`
	FileKey string `json:"fileKey"`
}
