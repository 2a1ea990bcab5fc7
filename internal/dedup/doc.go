// Package dedup merges event records that describe the same real-world
// event under different source representations.
//
// Two records are duplicates when:
//   - title similarity meets the title threshold, and
//   - venue similarity meets the venue threshold, and
//   - both start on the same UTC calendar date.
//
// Duplication is transitive: if A~B and B~C, then {A, B, C} form one group
// even when A and C would not match directly. Each group yields a single
// canonical record via a deterministic field-merge policy.
package dedup
