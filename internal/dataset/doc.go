// Package dataset downloads the labelled training images and enumerates the
// local copies.
//
// Images are fetched from `<base_url>/<class>/<index>.jpg` (eight-digit,
// zero-padded index) into `<data_dir>/<class>/`. Existing non-empty files are
// left alone, so an interrupted download can simply be re-run.
package dataset
