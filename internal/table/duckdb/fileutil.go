package duckdb

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// writeTempParquet stores data in a fresh directory and returns the file path
// together with a cleanup func removing the directory.
func writeTempParquet(data []byte) (string, func(), error) {
	workDir, err := os.MkdirTemp("", "s1-decode-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	path := filepath.Join(workDir, "object.parquet")
	if err := writeFile(path, bytes.NewReader(data)); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}
