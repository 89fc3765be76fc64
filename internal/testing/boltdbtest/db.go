package boltdbtest

import (
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"
)

// Open opens a BoltDB database in a new temporary directory.
//
// The returned function must be used to close the database, instead of
// DB.Close(). It also removes the temporary directory.
func Open() (*bbolt.DB, func()) {
	file, remove := TempFile()

	db, err := bbolt.Open(file, 0600, nil)
	if err != nil {
		remove()
		panic(err)
	}

	return db, func() {
		db.Close()
		remove()
	}
}

// TempFile returns the name of a file within a new temporary directory that
// can be used for a BoltDB database. The file itself does not exist.
//
// It returns a function that removes the temporary directory.
func TempFile() (string, func()) {
	dir, err := os.MkdirTemp("", "journal-boltdb-*")
	if err != nil {
		panic(err)
	}

	var once sync.Once
	return filepath.Join(dir, "journal.boltdb"), func() {
		once.Do(func() {
			os.RemoveAll(dir)
		})
	}
}
