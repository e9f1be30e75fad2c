package transfer

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// FileInfo describes a local file that can be offered.
type FileInfo struct {
	Path string
	Name string
	Size int64
	Type string
}

// Metadata is what the receiver learns about the file.
func (f FileInfo) Metadata() FileMetadata {
	return FileMetadata{Name: f.Name, Size: uint64(f.Size), Type: f.Type}
}

// ValidateFile checks that path is a readable, non-empty regular file.
func ValidateFile(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, NewFileError("resolve", path, err)
	}

	stat, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, WrapError("validate", ErrInvalidFile, fmt.Sprintf("%s does not exist", path))
		}
		return FileInfo{}, NewFileError("stat", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, WrapError("validate", ErrInvalidFile, fmt.Sprintf("%s is a directory", path))
	}
	if stat.Size() == 0 {
		return FileInfo{}, WrapError("validate", ErrInvalidFile, fmt.Sprintf("%s is empty", path))
	}

	f, err := os.Open(abs)
	if err != nil {
		return FileInfo{}, NewFileError("open", path, err)
	}
	f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return FileInfo{
		Path: abs,
		Name: filepath.Base(abs),
		Size: stat.Size(),
		Type: mimeType,
	}, nil
}
