package domain

// ManifestEntry describes one document of the book as listed in manifest.json.
type ManifestEntry struct {
	Slug      string   `json:"slug"`
	Path      string   `json:"path,omitempty"`
	Title     string   `json:"title"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Author    string   `json:"author,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

// DocumentPath returns the entry path, falling back to the conventional
// chapter location derived from the slug.
func (e ManifestEntry) DocumentPath() string {
	if e.Path != "" {
		return e.Path
	}
	return "/chapters/" + e.Slug + ".md"
}

// Metadata returns the entry fields in the shape the search engine filters on.
func (e ManifestEntry) Metadata() map[string]any {
	meta := map[string]any{
		"slug":  e.Slug,
		"title": e.Title,
		"path":  e.DocumentPath(),
	}
	if e.Category != "" {
		meta["category"] = e.Category
	}
	if len(e.Tags) > 0 {
		tags := make([]string, len(e.Tags))
		copy(tags, e.Tags)
		meta["tags"] = tags
	}
	if e.Author != "" {
		meta["author"] = e.Author
	}
	if e.UpdatedAt != "" {
		meta["updatedAt"] = e.UpdatedAt
	}
	return meta
}

// Term is a single analyzed word: the normalized surface form and its stem.
type Term struct {
	Surface string
	Stem    string
}

// SyncEntry marks a record as pending external synchronization.
type SyncEntry struct {
	ID        any    `json:"id,omitempty"`
	Store     string `json:"store"`
	Key       any    `json:"key"`
	Timestamp string `json:"timestamp"`
}
