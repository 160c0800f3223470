package featurestore

import "errors"

var (
	// ErrEmptySourcePath rejects upserts without a usable source path.
	ErrEmptySourcePath = errors.New("source path is empty")
	// ErrInvalidEncoding rejects source paths and labels that are not valid UTF-8;
	// persisted documents cannot carry them unchanged.
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")
	// ErrUnsupportedAttribute rejects attribute values that are not integers, floats, or strings.
	ErrUnsupportedAttribute = errors.New("unsupported attribute value")
	// ErrReservedAttribute rejects attribute names that collide with fixed columns or are empty.
	ErrReservedAttribute = errors.New("reserved attribute name")
	// ErrSerialize marks failures encoding or decoding persisted feature data.
	ErrSerialize = errors.New("feature serialization failed")
	// ErrPersist marks failures writing feature data to durable storage.
	ErrPersist = errors.New("feature persistence failed")
)
