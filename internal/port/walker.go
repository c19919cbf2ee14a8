package port

// FileWalker lists content files below a root directory.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

// FileInfo describes one content file.
type FileInfo struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}
