// Package features computes the attribute bag stored for each dataset image:
// dimensions, colour mode, aspect ratio, and per-channel mean and standard
// deviation over 8-bit RGB.
//
// Extraction never fails loudly. Unreadable or undecodable files are logged
// and yield an empty bag, so callers can still record the image.
package features
