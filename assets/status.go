package assets

// Status is the closed result vocabulary for download operations. Like
// the activation statuses, raw transport errors never escape; every
// outcome maps into this set.
type Status int

const (
	// StatusSuccess means the download completed and the file is in place.
	StatusSuccess Status = iota
	// StatusNotFound means the asset does not exist.
	StatusNotFound
	// StatusUnauthorized means the caller may not download the asset.
	StatusUnauthorized
	// StatusNetworkError means the transfer could not start or complete.
	StatusNetworkError
	// StatusDiskError means the local file could not be written.
	StatusDiskError
	// StatusCancelled means the download was cancelled mid-stream.
	StatusCancelled
	// StatusAlreadyExists means the target file was already present.
	StatusAlreadyExists
	// StatusInvalidURL means the download URL is unusable.
	StatusInvalidURL
	// StatusCorrupted means the downloaded bytes failed checksum
	// verification.
	StatusCorrupted
)

// String returns a human-readable description suitable for display.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Download completed"
	case StatusNotFound:
		return "Asset not found"
	case StatusUnauthorized:
		return "Not authorized"
	case StatusNetworkError:
		return "Network error"
	case StatusDiskError:
		return "Could not write file"
	case StatusCancelled:
		return "Download cancelled"
	case StatusAlreadyExists:
		return "File already exists"
	case StatusInvalidURL:
		return "Invalid download URL"
	case StatusCorrupted:
		return "File corrupted"
	}
	return "Unknown status"
}

// succeeded reports whether a batch item counts as a success. A file
// already on disk is as good as a fresh download.
func (s Status) succeeded() bool {
	return s == StatusSuccess || s == StatusAlreadyExists
}
