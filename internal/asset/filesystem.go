package asset

import (
	"net/http"
	"os"

	"github.com/spf13/afero"
)

// FileSystem is the subset of filesystem operations the local store needs
type FileSystem interface {
	// MkdirAll creates a directory and any necessary parent directories
	MkdirAll(path string, perm os.FileMode) error
	// Stat returns a FileInfo describing the named file
	Stat(name string) (os.FileInfo, error)
	// WriteFile writes data to a file
	WriteFile(name string, data []byte, perm os.FileMode) error
	// Rename moves a file, replacing the target
	Rename(oldname, newname string) error
	// Remove removes a named file or directory
	Remove(name string) error
	// HTTP exposes a directory as an http.FileSystem
	HTTP(dir string) http.FileSystem
}

type aferoFileSystem struct {
	fs afero.Fs
}

func (fs *aferoFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return fs.fs.MkdirAll(path, perm)
}

func (fs *aferoFileSystem) Stat(name string) (os.FileInfo, error) {
	return fs.fs.Stat(name)
}

func (fs *aferoFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(fs.fs, name, data, perm)
}

func (fs *aferoFileSystem) Rename(oldname, newname string) error {
	return fs.fs.Rename(oldname, newname)
}

func (fs *aferoFileSystem) Remove(name string) error {
	return fs.fs.Remove(name)
}

func (fs *aferoFileSystem) HTTP(dir string) http.FileSystem {
	return afero.NewHttpFs(fs.fs).Dir(dir)
}

// NewOSFileSystem returns a FileSystem that uses the actual OS filesystem
func NewOSFileSystem() FileSystem {
	return &aferoFileSystem{fs: afero.NewOsFs()}
}

// NewMemMapFileSystem returns a FileSystem backed by afero's in-memory filesystem
func NewMemMapFileSystem() FileSystem {
	return &aferoFileSystem{fs: afero.NewMemMapFs()}
}

// NewAferoFileSystem wraps an afero.Fs in the FileSystem interface
func NewAferoFileSystem(fs afero.Fs) FileSystem {
	return &aferoFileSystem{fs: fs}
}
