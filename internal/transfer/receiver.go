package transfer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BioHazard786/deskwarp/internal/utils"
)

// FileWriter stores an incoming file under a name that does not clobber
// anything already in the download directory.
type FileWriter struct {
	File     *os.File
	Path     string
	Metadata FileMetadata
	Received uint64
}

func NewFileWriter(dir string, meta FileMetadata) (*FileWriter, error) {
	name := filepath.Base(meta.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return nil, WrapError("create file", ErrInvalidFile, "bad file name "+meta.Name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewFileError("create directory", dir, err)
	}

	path := utils.UniquePath(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, NewFileError("create file", meta.Name, err)
	}

	return &FileWriter{File: file, Path: path, Metadata: meta}, nil
}

// WriteAt writes data at offset. Sequential chunks do not seek.
func (w *FileWriter) WriteAt(data []byte, offset uint64) (int, error) {
	if offset != w.Received {
		if _, err := w.File.Seek(int64(offset), io.SeekStart); err != nil {
			return 0, NewFileError("seek", w.Metadata.Name, err)
		}
		w.Received = offset
	}
	n, err := w.File.Write(data)
	w.Received += uint64(n)
	if err != nil {
		return n, NewFileError("write", w.Metadata.Name, err)
	}
	return n, nil
}

func (w *FileWriter) IsComplete() bool {
	return w.Received >= w.Metadata.Size
}

func (w *FileWriter) Close() error {
	return w.File.Close()
}
