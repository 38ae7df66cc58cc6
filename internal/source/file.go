package source

import (
	"context"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/olaaustine/awsmultic/errors"
)

// File reads a file from a local filesystem.
type File struct {
	fs   billy.Filesystem
	path string
}

// NewFile creates a source reading path on fs.
func NewFile(fs billy.Filesystem, path string) *File {
	return &File{
		fs:   fs,
		path: path,
	}
}

// Stat returns the file size and sniffs its content type.
func (f *File) Stat(_ context.Context) (Info, error) {
	fi, err := f.fs.Stat(f.path)
	if err != nil {
		return Info{}, errors.New("stat", errors.KindStorageIO, err).WithKey(f.path)
	}
	if fi.IsDir() {
		return Info{}, errors.New("stat", errors.KindInvalidInput, errors.ErrInvalidInput).
			WithKey(f.path).
			WithMessage("source is a directory")
	}

	contentType, err := f.detectContentType()
	if err != nil {
		return Info{}, err
	}

	return Info{
		Size:        fi.Size(),
		ContentType: contentType,
	}, nil
}

func (f *File) detectContentType() (string, error) {
	file, err := f.fs.Open(f.path)
	if err != nil {
		return "", errors.New("open", errors.KindStorageIO, err).WithKey(f.path)
	}
	defer func() {
		_ = file.Close()
	}()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", errors.New("detectContentType", errors.KindStorageIO, err).WithKey(f.path)
	}
	return mtype.String(), nil
}

// Open opens the file for reading.
func (f *File) Open(_ context.Context) (io.ReadCloser, error) {
	file, err := f.fs.Open(f.path)
	if err != nil {
		return nil, errors.New("open", errors.KindStorageIO, err).WithKey(f.path)
	}
	return file, nil
}

func (f *File) String() string {
	return "file://" + f.path
}
