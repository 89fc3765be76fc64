package bboltx

import (
	"encoding/binary"

	"go.etcd.io/bbolt"
)

var (
	_ BucketParent = (*bbolt.Tx)(nil)
	_ BucketParent = (*bbolt.Bucket)(nil)
)

// BucketParent is an interface for things that contain buckets.
type BucketParent interface {
	CreateBucketIfNotExists([]byte) (*bbolt.Bucket, error)
	Bucket([]byte) *bbolt.Bucket
}

// MustCreateBucketIfNotExists creates nested buckets with names given by the
// elements of path.
func MustCreateBucketIfNotExists(p BucketParent, path ...[]byte) *bbolt.Bucket {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	var b *bbolt.Bucket

	for _, n := range path {
		var err error
		b, err = p.CreateBucketIfNotExists(n)
		Must(err)

		p = b
	}

	return b
}

// Bucket gets nested buckets with names given by the elements of path.
//
// It returns nil if any of the nested buckets does not exist.
func Bucket(p BucketParent, path ...[]byte) (b *bbolt.Bucket) {
	if len(path) == 0 {
		panic("at least one path element must be provided")
	}

	for _, n := range path {
		b = p.Bucket(n)
		if b == nil {
			return nil
		}

		p = b
	}

	return b
}

// MustPut writes a value to a bucket.
func MustPut(b *bbolt.Bucket, k, v []byte) {
	Must(b.Put(k, v))
}

// MustNextSequence returns the next value of the bucket's sequence counter.
func MustNextSequence(b *bbolt.Bucket) uint64 {
	n, err := b.NextSequence()
	Must(err)
	return n
}

// MarshalUint64 encodes n as a big-endian key, so that keys sort in numeric
// order.
func MarshalUint64(n uint64) []byte {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], n)
	return data[:]
}

// UnmarshalUint64 decodes a key produced by MarshalUint64().
func UnmarshalUint64(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}
