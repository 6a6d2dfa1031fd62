// Package manifest discovers, fetches, and splits the procedure manifest.
//
// A manifest is a UTF-8 text object holding one procedure-call directive per
// line. Discovery lists a prefix, keeps keys ending in the manifest suffix
// (case-insensitive) and applies a SelectionPolicy when several match.
package manifest
